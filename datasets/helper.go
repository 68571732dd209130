package datasets

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"go.uber.org/zap"
)

const (
	// DefaultSampleFrequency is the annotation rate in Hz.
	DefaultSampleFrequency = 2.0

	// BufferSeconds widens the time window of past/future queries so that
	// samples whose timestamps jitter slightly past the boundary still count.
	BufferSeconds = 0.15

	// DefaultMaxTimeDiff is the largest gap (seconds) between two consecutive
	// annotations that still yields a kinematic estimate.
	DefaultMaxTimeDiff = 1.5
)

// Helper answers agent-centric queries over a set of annotations.
type Helper struct {
	byToken   map[string]*Annotation
	byKey     map[string]string   // instance_sample -> annotation token
	bySample  map[string][]string // sample -> annotation tokens, sorted by instance
	instances map[string][]string // instance -> annotation tokens in time order

	sampleFrequency float64
	maxTimeDiff     float64
	log             *zap.Logger
}

// HelperOption customizes a Helper.
type HelperOption func(*Helper)

// WithLogger sets the logger used while indexing.
func WithLogger(l *zap.Logger) HelperOption {
	return func(h *Helper) {
		if l != nil {
			h.log = l
		}
	}
}

// WithSampleFrequency sets the expected annotation rate in Hz.
func WithSampleFrequency(hz float64) HelperOption {
	return func(h *Helper) {
		if hz > 0 {
			h.sampleFrequency = hz
		}
	}
}

// WithMaxTimeDiff sets the largest gap that still produces kinematics.
func WithMaxTimeDiff(seconds float64) HelperOption {
	return func(h *Helper) {
		if seconds > 0 {
			h.maxTimeDiff = seconds
		}
	}
}

// JoinToken builds the "instance_sample" key used by prediction splits.
func JoinToken(instance, sample string) string {
	return instance + "_" + sample
}

// SplitToken splits an "instance_sample" key. Tokens never contain '_', so
// the first underscore separates the two.
func SplitToken(token string) (instance, sample string, err error) {
	i := strings.IndexByte(token, '_')
	if i <= 0 || i == len(token)-1 {
		return "", "", fmt.Errorf("malformed prediction token %q", token)
	}
	return token[:i], token[i+1:], nil
}

// NewHelper indexes anns. Each instance's annotations are ordered by
// timestamp and linked through Prev/Next; a change of scene breaks the chain.
func NewHelper(anns []Annotation, opts ...HelperOption) (*Helper, error) {
	h := &Helper{
		byToken:         make(map[string]*Annotation, len(anns)),
		byKey:           make(map[string]string, len(anns)),
		bySample:        make(map[string][]string),
		instances:       make(map[string][]string),
		sampleFrequency: DefaultSampleFrequency,
		maxTimeDiff:     DefaultMaxTimeDiff,
		log:             zap.NewNop(),
	}
	for _, opt := range opts {
		opt(h)
	}

	for i := range anns {
		a := anns[i]
		a.Prev, a.Next = "", ""
		if a.Token == "" {
			a.Token = JoinToken(a.Instance, a.Sample)
		}
		key := JoinToken(a.Instance, a.Sample)
		if _, dup := h.byKey[key]; dup {
			return nil, fmt.Errorf("duplicate annotation for instance %s in sample %s", a.Instance, a.Sample)
		}
		if _, dup := h.byToken[a.Token]; dup {
			return nil, fmt.Errorf("duplicate annotation token %s", a.Token)
		}
		h.byToken[a.Token] = &a
		h.byKey[key] = a.Token
		h.bySample[a.Sample] = append(h.bySample[a.Sample], a.Token)
		h.instances[a.Instance] = append(h.instances[a.Instance], a.Token)
	}

	for _, tokens := range h.instances {
		sort.SliceStable(tokens, func(i, j int) bool {
			return h.byToken[tokens[i]].Timestamp < h.byToken[tokens[j]].Timestamp
		})
		for i := 1; i < len(tokens); i++ {
			prev, cur := h.byToken[tokens[i-1]], h.byToken[tokens[i]]
			if prev.Scene != cur.Scene {
				continue
			}
			prev.Next = cur.Token
			cur.Prev = prev.Token
		}
	}
	for _, tokens := range h.bySample {
		sort.Slice(tokens, func(i, j int) bool {
			return h.byToken[tokens[i]].Instance < h.byToken[tokens[j]].Instance
		})
	}

	h.log.Debug("indexed annotations",
		zap.Int("annotations", len(anns)),
		zap.Int("instances", len(h.instances)),
		zap.Int("samples", len(h.bySample)))
	return h, nil
}

// Len returns the number of annotations.
func (h *Helper) Len() int {
	return len(h.byToken)
}

// SampleFrequency returns the expected annotation rate in Hz.
func (h *Helper) SampleFrequency() float64 {
	return h.sampleFrequency
}

// Annotations returns every annotation ordered by instance then time.
func (h *Helper) Annotations() []Annotation {
	instances := make([]string, 0, len(h.instances))
	for inst := range h.instances {
		instances = append(instances, inst)
	}
	sort.Strings(instances)
	out := make([]Annotation, 0, len(h.byToken))
	for _, inst := range instances {
		for _, tok := range h.instances[inst] {
			out = append(out, *h.byToken[tok])
		}
	}
	return out
}

// Samples returns every sample token, sorted.
func (h *Helper) Samples() []string {
	out := make([]string, 0, len(h.bySample))
	for s := range h.bySample {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// GetSampleAnnotation returns the annotation of instance in sample.
func (h *Helper) GetSampleAnnotation(instance, sample string) (Annotation, error) {
	tok, ok := h.byKey[JoinToken(instance, sample)]
	if !ok {
		return Annotation{}, fmt.Errorf("%w: instance %s in sample %s", ErrNotFound, instance, sample)
	}
	return *h.byToken[tok], nil
}

// GetAnnotationsForSample returns every annotation in sample, ordered by
// instance token.
func (h *Helper) GetAnnotationsForSample(sample string) ([]Annotation, error) {
	tokens, ok := h.bySample[sample]
	if !ok {
		return nil, fmt.Errorf("%w: sample %s", ErrNotFound, sample)
	}
	out := make([]Annotation, len(tokens))
	for i, tok := range tokens {
		out[i] = *h.byToken[tok]
	}
	return out, nil
}

// iterate walks the instance's track from start in one direction and
// collects annotations within seconds (plus BufferSeconds) of start, capped
// at sampleFrequency*seconds records.
func (h *Helper) iterate(start *Annotation, seconds float64, forward bool) ([]Annotation, error) {
	if seconds < 0 {
		return nil, fmt.Errorf("%w: got %v", ErrNegativeSeconds, seconds)
	}
	if seconds == 0 {
		return []Annotation{}, nil
	}

	withBuffer := seconds + BufferSeconds
	maxAnnotations := int(h.sampleFrequency * seconds)
	startTime := start.Seconds()

	out := make([]Annotation, 0, maxAnnotations)
	next := start
	elapsed := 0.0
	for math.Abs(elapsed) <= withBuffer && len(out) < maxAnnotations {
		link := next.Prev
		if forward {
			link = next.Next
		}
		if link == "" {
			break
		}
		next = h.byToken[link]
		elapsed = next.Seconds() - startTime
		if math.Abs(elapsed) < withBuffer {
			out = append(out, *next)
		}
	}
	return out, nil
}

func (h *Helper) agentRecords(instance, sample string, seconds float64, forward bool) (Annotation, []Annotation, error) {
	start, err := h.GetSampleAnnotation(instance, sample)
	if err != nil {
		return Annotation{}, nil, err
	}
	recs, err := h.iterate(&start, seconds, forward)
	return start, recs, err
}

// GetPastForAgentRecords returns up to seconds of the instance's past
// annotations, most recent first.
func (h *Helper) GetPastForAgentRecords(instance, sample string, seconds float64) ([]Annotation, error) {
	_, recs, err := h.agentRecords(instance, sample, seconds, false)
	return recs, err
}

// GetFutureForAgentRecords returns up to seconds of the instance's future
// annotations, in time order.
func (h *Helper) GetFutureForAgentRecords(instance, sample string, seconds float64) ([]Annotation, error) {
	_, recs, err := h.agentRecords(instance, sample, seconds, true)
	return recs, err
}

func (h *Helper) agentPoints(instance, sample string, seconds float64, inAgentFrame, forward bool) ([]Point, error) {
	start, recs, err := h.agentRecords(instance, sample, seconds, forward)
	if err != nil {
		return nil, err
	}
	return toPoints(recs, start, inAgentFrame), nil
}

func toPoints(recs []Annotation, origin Annotation, inAgentFrame bool) []Point {
	pts := make([]Point, len(recs))
	for i, r := range recs {
		pts[i] = r.Translation()
	}
	if inAgentFrame {
		return ConvertGlobalCoordsToLocal(pts, origin.Translation(), origin.Yaw)
	}
	return pts
}

// GetPastForAgent returns the instance's past positions, most recent first.
// With inAgentFrame the points are expressed in the frame of the agent at
// sample.
func (h *Helper) GetPastForAgent(instance, sample string, seconds float64, inAgentFrame bool) ([]Point, error) {
	return h.agentPoints(instance, sample, seconds, inAgentFrame, false)
}

// GetFutureForAgent returns the instance's future positions in time order.
func (h *Helper) GetFutureForAgent(instance, sample string, seconds float64, inAgentFrame bool) ([]Point, error) {
	return h.agentPoints(instance, sample, seconds, inAgentFrame, true)
}

func (h *Helper) samplePoints(sample string, seconds float64, inAgentFrame, forward bool) (map[string][]Point, error) {
	anns, err := h.GetAnnotationsForSample(sample)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]Point, len(anns))
	for i := range anns {
		recs, err := h.iterate(&anns[i], seconds, forward)
		if err != nil {
			return nil, err
		}
		out[anns[i].Instance] = toPoints(recs, anns[i], inAgentFrame)
	}
	return out, nil
}

// GetPastForSample returns the past positions of every agent in sample,
// keyed by instance token.
func (h *Helper) GetPastForSample(sample string, seconds float64, inAgentFrame bool) (map[string][]Point, error) {
	return h.samplePoints(sample, seconds, inAgentFrame, false)
}

// GetFutureForSample returns the future positions of every agent in sample,
// keyed by instance token.
func (h *Helper) GetFutureForSample(sample string, seconds float64, inAgentFrame bool) (map[string][]Point, error) {
	return h.samplePoints(sample, seconds, inAgentFrame, true)
}

// GetPastForSampleRecords returns the past annotations of every agent in
// sample, keyed by instance token.
func (h *Helper) GetPastForSampleRecords(sample string, seconds float64) (map[string][]Annotation, error) {
	anns, err := h.GetAnnotationsForSample(sample)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]Annotation, len(anns))
	for i := range anns {
		recs, err := h.iterate(&anns[i], seconds, false)
		if err != nil {
			return nil, err
		}
		out[anns[i].Instance] = recs
	}
	return out, nil
}

// previous returns the annotation preceding cur and the time between them, or
// ok=false when there is none or the gap is too large to differentiate over.
func (h *Helper) previous(cur Annotation) (prev Annotation, dt float64, ok bool) {
	if cur.Prev == "" {
		return Annotation{}, 0, false
	}
	prev = *h.byToken[cur.Prev]
	dt = cur.Seconds() - prev.Seconds()
	if dt <= 0 || dt > h.maxTimeDiff {
		return Annotation{}, 0, false
	}
	return prev, dt, true
}

// GetVelocityForAgent returns the instance's speed (m/s) at sample, or NaN
// when it has no usable predecessor.
func (h *Helper) GetVelocityForAgent(instance, sample string) (float64, error) {
	cur, err := h.GetSampleAnnotation(instance, sample)
	if err != nil {
		return 0, err
	}
	return h.velocity(cur), nil
}

func (h *Helper) velocity(cur Annotation) float64 {
	prev, dt, ok := h.previous(cur)
	if !ok {
		return math.NaN()
	}
	return math.Hypot(cur.X-prev.X, cur.Y-prev.Y) / dt
}

// GetHeadingChangeRateForAgent returns the instance's yaw rate (rad/s) at
// sample, or NaN.
func (h *Helper) GetHeadingChangeRateForAgent(instance, sample string) (float64, error) {
	cur, err := h.GetSampleAnnotation(instance, sample)
	if err != nil {
		return 0, err
	}
	prev, dt, ok := h.previous(cur)
	if !ok {
		return math.NaN(), nil
	}
	return AngleDiff(cur.Yaw, prev.Yaw, 2*math.Pi) / dt, nil
}

// GetAccelerationForAgent returns the change in speed (m/s²) between the
// previous annotation and sample, or NaN.
func (h *Helper) GetAccelerationForAgent(instance, sample string) (float64, error) {
	cur, err := h.GetSampleAnnotation(instance, sample)
	if err != nil {
		return 0, err
	}
	prev, dt, ok := h.previous(cur)
	if !ok {
		return math.NaN(), nil
	}
	return (h.velocity(cur) - h.velocity(prev)) / dt, nil
}

// PredictionTokens lists "instance_sample" tokens whose agent has at least
// minPastSeconds of history and minFutureSeconds of future, sorted.
func (h *Helper) PredictionTokens(minPastSeconds, minFutureSeconds float64) ([]string, error) {
	needPast := int(h.sampleFrequency * minPastSeconds)
	needFuture := int(h.sampleFrequency * minFutureSeconds)
	var out []string
	for key, tok := range h.byKey {
		a := h.byToken[tok]
		past, err := h.iterate(a, minPastSeconds, false)
		if err != nil {
			return nil, err
		}
		future, err := h.iterate(a, minFutureSeconds, true)
		if err != nil {
			return nil, err
		}
		if len(past) >= needPast && len(future) >= needFuture {
			out = append(out, key)
		}
	}
	sort.Strings(out)
	return out, nil
}
