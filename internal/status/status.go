// Package status rotates the bot's "Watching" presence text.
package status

import (
	"context"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

var base = []string{
	"eating mochi >w<",
	"watching anime ^_^",
	"sipping matcha :3",
	"slurping ramen >o<",
	"cuddling plushies <3",
	"chasing butterflies ~",
	"under the sakura <3",
	"wind chime dreams ~",
	"reading manga ^-^",
	"cozy kotatsu time ~",
	"being sleepy -_-",
	"headpats please owo",
	"nya~ =^.^=",
	"happy vibes :D",
	"daydreaming *.*",
}

var seasonal = map[time.Month][]string{
	time.December:  {"building snow bunnies ^_^", "decorating bonsai <3"},
	time.January:   {"building snow bunnies ^_^", "decorating bonsai <3"},
	time.February:  {"building snow bunnies ^_^", "decorating bonsai <3"},
	time.March:     {"hanami picnic <3", "flying koinobori ~"},
	time.April:     {"hanami picnic <3", "flying koinobori ~"},
	time.May:       {"hanami picnic <3", "flying koinobori ~"},
	time.June:      {"watching fireworks *.*", "eating watermelon :3"},
	time.July:      {"watching fireworks *.*", "eating watermelon :3"},
	time.August:    {"watching fireworks *.*", "eating watermelon :3"},
	time.September: {"leaf peeping ^-^", "carving pumpkins >o<"},
	time.October:   {"leaf peeping ^-^", "carving pumpkins >o<"},
	time.November:  {"leaf peeping ^-^", "carving pumpkins >o<"},
}

// Candidates returns the status lines available at t.
func Candidates(t time.Time) []string {
	out := make([]string, 0, len(base)+2)
	out = append(out, base...)
	return append(out, seasonal[t.Month()]...)
}

type Rotator struct {
	logger *zap.Logger
	now    func() time.Time
	intN   func(int) int
	last   string
}

func NewRotator(logger *zap.Logger) *Rotator {
	return &Rotator{logger: logger, now: time.Now, intN: rand.IntN}
}

// Pick returns a random candidate, avoiding an immediate repeat.
func (r *Rotator) Pick() string {
	options := Candidates(r.now())
	choice := options[r.intN(len(options))]
	if choice == r.last {
		choice = options[(indexOf(options, choice)+1)%len(options)]
	}
	r.last = choice
	return choice
}

// Run applies a fresh status immediately and then once per interval until
// ctx is cancelled. Apply failures are logged and the rotation continues.
func (r *Rotator) Run(ctx context.Context, interval time.Duration, apply func(string) error) {
	if interval <= 0 {
		interval = time.Minute
	}
	r.apply(apply)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.apply(apply)
		}
	}
}

func (r *Rotator) apply(apply func(string) error) {
	text := r.Pick()
	if err := apply(text); err != nil {
		r.logger.Warn("status update failed", zap.String("status", text), zap.Error(err))
	}
}

func indexOf(options []string, value string) int {
	for i, option := range options {
		if option == value {
			return i
		}
	}
	return 0
}
