package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/storyforge/shield/internal/logging"
)

// Activity is one observed user action, as seen at the boundary.
type Activity struct {
	Action    string
	Country   string
	Device    string
	IPAddress string
	Timestamp time.Time
}

// SignalResult is the contribution of one anomaly signal.
type SignalResult struct {
	RiskScore float64
	Reasons   []string
}

// Signal scores one independent dimension of an activity against the
// user's baseline profile.
type Signal func(ctx context.Context, baseline *Profile, activity Activity) (SignalResult, error)

// Profile is a user's behavioral baseline. Updated after each
// assessment so an activity never scores against itself.
type Profile struct {
	Countries  map[string]int
	Devices    map[string]int
	HourCounts [24]int
	Recent     []time.Time
	Total      int
}

func newProfile() *Profile {
	return &Profile{
		Countries: make(map[string]int),
		Devices:   make(map[string]int),
	}
}

// Detector aggregates independent anomaly signals into a risk
// assessment and emits a suspicious_activity event when warranted.
type Detector struct {
	mu       sync.Mutex
	profiles map[string]*Profile
	signals  []Signal
	monitor  *Monitor
	logger   *logging.Logger
}

// NewDetector creates a detector with the four built-in signals:
// geolocation, action frequency, time of day, and device.
func NewDetector(monitor *Monitor, logger *logging.Logger) *Detector {
	return &Detector{
		profiles: make(map[string]*Profile),
		signals:  []Signal{GeolocationSignal, FrequencySignal, TimeOfDaySignal, DeviceSignal},
		monitor:  monitor,
		logger:   logger,
	}
}

// NewDetectorWithSignals creates a detector with a custom signal set.
func NewDetectorWithSignals(monitor *Monitor, logger *logging.Logger, signals ...Signal) *Detector {
	return &Detector{
		profiles: make(map[string]*Profile),
		signals:  signals,
		monitor:  monitor,
		logger:   logger,
	}
}

// DetectAnomalies fans the signals out in parallel, joins them all, and
// aggregates: risk score is the arithmetic mean of the signal scores and
// the activity is anomalous when the score exceeds 0.7 or at least two
// signals flagged a reason. A failing signal contributes score 0 with
// no reasons and never blocks its siblings. Anomalous activity is
// logged automatically as a suspicious_activity event.
func (d *Detector) DetectAnomalies(ctx context.Context, userID string, activity Activity) AnomalyAssessment {
	if activity.Timestamp.IsZero() {
		activity.Timestamp = time.Now().UTC()
	}

	baseline := d.snapshot(userID)
	results := make([]SignalResult, len(d.signals))

	var wg sync.WaitGroup
	for i, signal := range d.signals {
		wg.Add(1)
		go func(i int, signal Signal) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					d.logger.Error("anomaly signal %d panicked: %v", i, r)
					results[i] = SignalResult{}
				}
			}()

			result, err := signal(ctx, baseline, activity)
			if err != nil {
				d.logger.Warn("anomaly signal %d failed: %v", i, err)
				results[i] = SignalResult{}
				return
			}
			results[i] = result
		}(i, signal)
	}
	wg.Wait()

	assessment := AnomalyAssessment{}
	for _, result := range results {
		assessment.RiskScore += result.RiskScore
		assessment.Reasons = append(assessment.Reasons, result.Reasons...)
	}
	if len(d.signals) > 0 {
		assessment.RiskScore /= float64(len(d.signals))
	}
	assessment.Anomalous = assessment.RiskScore > 0.7 || len(assessment.Reasons) >= 2

	recordAnomalyMetric(assessment)
	d.record(userID, activity)

	if assessment.Anomalous && d.monitor != nil {
		severity := SeverityMedium
		if assessment.RiskScore > 0.8 {
			severity = SeverityHigh
		}
		event := NewEvent(EventSuspiciousActivity, severity, d.monitor.source)
		event.ActorID = userID
		event.OriginAddress = activity.IPAddress
		event.Details = map[string]interface{}{
			"risk_score": assessment.RiskScore,
			"reasons":    assessment.Reasons,
			"activity": map[string]interface{}{
				"action":  activity.Action,
				"country": activity.Country,
				"device":  activity.Device,
			},
		}
		d.monitor.LogEvent(ctx, event)
	}

	return assessment
}

// snapshot returns a copy of the user's baseline for lock-free reads by
// the signal goroutines.
func (d *Detector) snapshot(userID string) *Profile {
	d.mu.Lock()
	defer d.mu.Unlock()

	p, ok := d.profiles[userID]
	if !ok {
		return newProfile()
	}

	cp := newProfile()
	for k, v := range p.Countries {
		cp.Countries[k] = v
	}
	for k, v := range p.Devices {
		cp.Devices[k] = v
	}
	cp.HourCounts = p.HourCounts
	cp.Recent = append(cp.Recent, p.Recent...)
	cp.Total = p.Total
	return cp
}

// record folds the activity into the user's baseline.
func (d *Detector) record(userID string, activity Activity) {
	d.mu.Lock()
	defer d.mu.Unlock()

	p, ok := d.profiles[userID]
	if !ok {
		p = newProfile()
		d.profiles[userID] = p
	}

	if activity.Country != "" {
		p.Countries[activity.Country]++
	}
	if activity.Device != "" {
		p.Devices[activity.Device]++
	}
	p.HourCounts[activity.Timestamp.Hour()]++
	p.Total++

	cutoff := activity.Timestamp.Add(-5 * time.Minute)
	recent := p.Recent[:0]
	for _, ts := range p.Recent {
		if ts.After(cutoff) {
			recent = append(recent, ts)
		}
	}
	p.Recent = append(recent, activity.Timestamp)
}

// minBaselineObservations is how much history a signal needs before a
// deviation is meaningful.
const minBaselineObservations = 3

// GeolocationSignal flags activity from a country the user has never
// been seen in.
func GeolocationSignal(ctx context.Context, baseline *Profile, activity Activity) (SignalResult, error) {
	if activity.Country == "" || len(baseline.Countries) == 0 || baseline.Total < minBaselineObservations {
		return SignalResult{}, nil
	}
	if _, seen := baseline.Countries[activity.Country]; seen {
		return SignalResult{}, nil
	}
	return SignalResult{RiskScore: 0.75, Reasons: []string{"unusual_location"}}, nil
}

// FrequencySignal flags bursts of actions well above the user's normal
// pace.
func FrequencySignal(ctx context.Context, baseline *Profile, activity Activity) (SignalResult, error) {
	window := activity.Timestamp.Add(-time.Minute)
	count := 0
	for _, ts := range baseline.Recent {
		if ts.After(window) {
			count++
		}
	}
	if count < 30 {
		return SignalResult{}, nil
	}
	score := float64(count) / 60
	if score > 1 {
		score = 1
	}
	return SignalResult{RiskScore: score, Reasons: []string{"high_action_frequency"}}, nil
}

// TimeOfDaySignal flags activity in an hour bucket the user almost
// never acts in.
func TimeOfDaySignal(ctx context.Context, baseline *Profile, activity Activity) (SignalResult, error) {
	if baseline.Total < 20 {
		return SignalResult{}, nil
	}
	hour := activity.Timestamp.Hour()
	fraction := float64(baseline.HourCounts[hour]) / float64(baseline.Total)
	if fraction >= 0.05 {
		return SignalResult{}, nil
	}
	return SignalResult{RiskScore: 0.6, Reasons: []string{"unusual_time_of_day"}}, nil
}

// DeviceSignal flags an unseen device or user agent.
func DeviceSignal(ctx context.Context, baseline *Profile, activity Activity) (SignalResult, error) {
	if activity.Device == "" || len(baseline.Devices) == 0 || baseline.Total < minBaselineObservations {
		return SignalResult{}, nil
	}
	if _, seen := baseline.Devices[activity.Device]; seen {
		return SignalResult{}, nil
	}
	return SignalResult{RiskScore: 0.65, Reasons: []string{"unknown_device"}}, nil
}
