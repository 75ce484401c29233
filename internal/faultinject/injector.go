package faultinject

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"time"
)

// Profile holds the per-namespace fault probabilities.
type Profile struct {
	DBDelay         float64
	WorkerException float64
	RedisFailure    float64
}

var profiles = map[string]Profile{
	"none":  {0, 0, 0},
	"mild":  {0.02, 0.01, 0.0},
	"harsh": {0.10, 0.05, 0.05},
}

const dbDelayDuration = 20 * time.Millisecond

// Injector is a deterministic fault source. Decisions are a pure
// function of (seed, profile, namespace, event_id, attempt), so a run
// replays exactly and a failing event sees a fresh decision each retry.
type Injector struct {
	profile string
	seed    uint64
	preset  Profile

	// Stubbed in tests to avoid real sleeps.
	sleep func(time.Duration)
}

func New(profile string, seed uint64) (*Injector, error) {
	preset, ok := profiles[profile]
	if !ok {
		return nil, fmt.Errorf("invalid FAIL_PROFILE: %q", profile)
	}
	return &Injector{
		profile: profile,
		seed:    seed,
		preset:  preset,
		sleep:   time.Sleep,
	}, nil
}

func (i *Injector) MaybeApplyDBDelay(eventID string, attempt int32) {
	if i.score("db_delay", eventID, attempt) < i.preset.DBDelay {
		i.sleep(dbDelayDuration)
	}
}

func (i *Injector) ShouldRaiseWorkerException(eventID string, attempt int32) bool {
	return i.score("worker_exception", eventID, attempt) < i.preset.WorkerException
}

func (i *Injector) ShouldFailRedisSimulation(eventID string, attempt int32) bool {
	return i.score("redis_failure", eventID, attempt) < i.preset.RedisFailure
}

// score maps the decision triple onto [0, 1) via the first eight bytes
// of a SHA-256 digest, big endian.
func (i *Injector) score(namespace, eventID string, attempt int32) float64 {
	payload := fmt.Sprintf("%d:%s:%s:%s:%d", i.seed, i.profile, namespace, eventID, attempt)
	digest := sha256.Sum256([]byte(payload))
	value := binary.BigEndian.Uint64(digest[:8])
	return float64(value) / twoPow64
}

const twoPow64 = float64(1 << 63) * 2
