package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/alanyoungcy/solbot/internal/domain"
	"github.com/alanyoungcy/solbot/internal/observability"
)

// DefaultThreshold is the score an analysis must exceed to alert.
const DefaultThreshold = 0.8

// AlertTitle heads every token alert.
const AlertTitle = "🚨 SOLANA ALERT 🚨"

// Decision is the outcome of a Dispatch call.
type Decision string

const (
	DecisionBelowThreshold Decision = "below_threshold"
	DecisionSent           Decision = "sent"
	DecisionFailed         Decision = "failed"
)

// Broadcaster delivers a titled message for an event type. *Notifier
// implements it.
type Broadcaster interface {
	Notify(ctx context.Context, event, title, message string) error
}

// AlertDispatcher turns analyses that cross the threshold into chat alerts.
// It never deduplicates: every call above the threshold sends.
type AlertDispatcher struct {
	out       Broadcaster
	threshold float64
	store     domain.AlertStore
	metrics   *observability.Metrics
	logger    *slog.Logger
	now       func() time.Time
}

// NewAlertDispatcher creates a dispatcher. store and metrics may be nil.
func NewAlertDispatcher(out Broadcaster, threshold float64, store domain.AlertStore, metrics *observability.Metrics, logger *slog.Logger) *AlertDispatcher {
	return &AlertDispatcher{
		out:       out,
		threshold: threshold,
		store:     store,
		metrics:   metrics,
		logger:    logger.With(slog.String("component", "alert_dispatcher")),
		now:       time.Now,
	}
}

// Threshold returns the configured alert threshold.
func (d *AlertDispatcher) Threshold() float64 {
	return d.threshold
}

// Dispatch sends an alert when res.Score is strictly above the threshold.
// Delivery errors are logged and journaled, never returned.
func (d *AlertDispatcher) Dispatch(ctx context.Context, token domain.TokenIdentifier, res domain.AnalysisResult) Decision {
	if !(res.Score > d.threshold) {
		d.metrics.RecordAlert(string(DecisionBelowThreshold))
		return DecisionBelowThreshold
	}

	title, body := FormatAlert(token, res)
	decision := DecisionSent
	var sendErr error
	func() {
		defer func() {
			if r := recover(); r != nil {
				sendErr = fmt.Errorf("notify: sender panicked: %v", r)
			}
		}()
		sendErr = d.out.Notify(ctx, EventTokenAlert, title, body)
	}()

	if sendErr != nil {
		decision = DecisionFailed
		d.logger.Error("alert delivery failed",
			slog.String("token", token.String()),
			slog.Float64("score", res.Score),
			slog.String("error", sendErr.Error()),
		)
	} else {
		d.logger.Info("alert sent",
			slog.String("token", token.String()),
			slog.Float64("score", res.Score),
		)
	}
	d.metrics.RecordAlert(string(decision))
	d.journal(ctx, token, res, body, sendErr)
	return decision
}

func (d *AlertDispatcher) journal(ctx context.Context, token domain.TokenIdentifier, res domain.AnalysisResult, body string, sendErr error) {
	if d.store == nil {
		return
	}
	rec := domain.AlertRecord{
		Token:     token,
		Score:     res.Score,
		Price:     res.Price,
		Liquidity: res.Liquidity,
		Message:   body,
		Delivered: sendErr == nil,
		CreatedAt: d.now().UTC(),
	}
	if sendErr != nil {
		rec.Error = sendErr.Error()
	}
	if err := d.store.Record(ctx, rec); err != nil {
		d.logger.Warn("alert journal write failed",
			slog.String("token", token.String()),
			slog.String("error", err.Error()),
		)
	}
}

// FormatAlert renders the alert title and Markdown body: address, price to
// four decimals, score to two, liquidity as a grouped integer and a DEX
// Screener link.
func FormatAlert(token domain.TokenIdentifier, res domain.AnalysisResult) (string, string) {
	p := message.NewPrinter(language.English)
	liquidity := p.Sprintf("%d", res.Liquidity.Round(0).IntPart())

	var b strings.Builder
	fmt.Fprintf(&b, "🔗 Address: `%s`\n", token)
	fmt.Fprintf(&b, "💰 Price: $%s\n", res.Price.StringFixed(4))
	fmt.Fprintf(&b, "📈 Score: %.2f/1.0\n", res.Score)
	fmt.Fprintf(&b, "💧 Liquidity: $%s\n", liquidity)
	fmt.Fprintf(&b, "[DEX Screener](%s)", ViewerURL(token))
	return AlertTitle, b.String()
}

// ViewerURL is the DEX Screener page of a Solana token.
func ViewerURL(token domain.TokenIdentifier) string {
	return "https://dexscreener.com/solana/" + token.String()
}
