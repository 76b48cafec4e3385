package main

import (
	"context"
	"log"
	"math"
	"time"

	"github.com/botsense/botsense/internal/behavior"
	"github.com/botsense/botsense/internal/event"
	"github.com/botsense/botsense/internal/indicator"
	"github.com/botsense/botsense/internal/session"
)

// generateHumanEvents produces a plausible organic interaction stream:
// a wandering pointer, clicks with approach trails and off-center
// offsets, and irregular scrolling.
func generateHumanEvents(baseMS int64) []event.Interaction {
	var events []event.Interaction

	x, y := 120.0, 340.0
	ts := baseMS + 100
	var trail []behavior.PointerSample

	for i := 0; i < 40; i++ {
		// irregular steps with a curve, the way a hand moves
		x += 8 + 6*math.Sin(float64(i)/3)
		y += 4 + 5*math.Cos(float64(i)/4)
		ts += 35 + int64(i%4)*13
		sample := behavior.PointerSample{X: x, Y: y, TS: ts}
		trail = append(trail, sample)
		if len(trail) > 6 {
			trail = trail[1:]
		}
		events = append(events, event.Interaction{
			TS: ts, Kind: event.KindPointerMove,
			Pointer: &sample,
		})

		if i > 0 && i%13 == 0 {
			ts += 140 + int64(i)*7
			events = append(events, event.Interaction{
				TS: ts, Kind: event.KindClick,
				Click: &behavior.ClickEvent{
					TS: ts, X: x + 3, Y: y - 2,
					TargetSelector: "button.buy-now",
					Element:        behavior.ElementInfo{Tag: "button", Class: "buy-now"},
					Bounds:         behavior.ElementBounds{Width: 120, Height: 36},
					Offset:         behavior.Offset{X: 41, Y: 11},
					Trusted:        true,
					Trail:          append([]behavior.PointerSample(nil), trail...),
				},
			})
		}
	}

	scrollTop := 0.0
	for i := 0; i < 12; i++ {
		ts += 90 + int64(i%5)*47
		dy := 60 + float64(i%7)*23
		scrollTop += dy
		events = append(events, event.Interaction{
			TS: ts, Kind: event.KindWheel,
			Wheel: &behavior.ScrollSample{TS: ts, DeltaY: dy, ScrollTop: scrollTop, Velocity: dy},
		})
	}

	return events
}

// generateAutomatedEvents produces the stream a naive driver emits:
// dead-center clicks with no pointer approach, metronomic click
// timing, and wheel deltas in exact multiples of 100.
func generateAutomatedEvents(baseMS int64) []event.Interaction {
	var events []event.Interaction

	ts := baseMS + 2500 // past the observation warmup
	for i := 0; i < 6; i++ {
		ts += 1000 // perfectly regular
		events = append(events, event.Interaction{
			TS: ts, Kind: event.KindClick,
			Click: &behavior.ClickEvent{
				TS: ts, X: 460, Y: 318,
				TargetSelector: "button#submit",
				Element:        behavior.ElementInfo{Tag: "button", ID: "submit"},
				Bounds:         behavior.ElementBounds{Width: 100, Height: 40},
				Offset:         behavior.Offset{X: 50, Y: 20}, // dead center
				Trusted:        false,
			},
		})
	}

	scrollTop := 0.0
	for i := 0; i < 20; i++ {
		ts += 50
		scrollTop += 100
		events = append(events, event.Interaction{
			TS: ts, Kind: event.KindWheel,
			Wheel: &behavior.ScrollSample{TS: ts, DeltaY: 100, ScrollTop: scrollTop, Velocity: 100},
		})
	}

	return events
}

// replaySession feeds a synthetic event stream through a live
// controller and hands the finished result to the completion hook.
func replaySession(id string, cfg behavior.Config, events []event.Interaction, onComplete func(session.Result)) {
	ctrl := session.NewController(id, cfg, indicator.NewMemoryStore())

	done := make(chan session.Result, 1)
	go func() {
		done <- ctrl.Collect(context.Background(), 10*time.Second)
	}()

	// let the collection loop start before feeding events
	time.Sleep(150 * time.Millisecond)
	for _, ev := range events {
		ctrl.HandleEvent(ev)
	}
	time.Sleep(150 * time.Millisecond)
	ctrl.Stop()

	res := <-done
	onComplete(res)

	log.Printf("📊 session %s: risk=%s detected=%d confidence=%.2f",
		id, res.Summary.RiskLevel, res.Summary.DetectedCount, res.Summary.MaxConfidence)
}

// runTestMode replays one organic and one automated session through
// the real detection pipeline so every sink and indicator path gets
// exercised end to end.
func runTestMode(sessions *session.Manager, onComplete func(session.Result)) {
	log.Println("🧪 TEST MODE: replaying synthetic sessions...")

	cfg := sessions.DetectionConfig()
	baseMS := time.Now().UnixMilli()

	replaySession("test-human", cfg, generateHumanEvents(baseMS), onComplete)
	replaySession("test-automated", cfg, generateAutomatedEvents(baseMS), onComplete)

	log.Println("✅ TEST MODE: done. Check your sinks:")
	log.Println("   - Log output: result lines above")
	log.Println("   - Kafka: topic botsense.results")
	log.Println("   - PostgreSQL: select * from session_results")
}
