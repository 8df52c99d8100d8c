package writer

// Settings configures the Adaptive Batching Writer's controller (§4.8
// step 5).
type Settings struct {
	Initial int
	Minimum int
	Maximum int
	// TargetMillis is the batch-commit latency the controller steers
	// toward.
	TargetMillis float64
	Enabled      bool
}

func (s Settings) withDefaults() Settings {
	if s.Initial <= 0 {
		s.Initial = 50
	}
	if s.Minimum <= 0 {
		s.Minimum = 1
	}
	if s.Maximum <= 0 {
		s.Maximum = 1000
	}
	if s.TargetMillis <= 0 {
		s.TargetMillis = 250
	}
	return s
}

// sizeController adapts the batch size toward a target commit latency
// (§4.8 step 5): raise it when commits are comfortably under target, lower
// it when they run over, always clamped to [Minimum, Maximum].
type sizeController struct {
	settings    Settings
	currentSize int
	emaMillis   float64
	haveEMA     bool
}

// newSizeController builds a controller seeded at Settings.Initial.
func newSizeController(settings Settings) *sizeController {
	settings = settings.withDefaults()
	return &sizeController{settings: settings, currentSize: settings.Initial}
}

// currentBatchSize is the size the writer should greedily drain up to next.
func (c *sizeController) currentBatchSize() int {
	return c.currentSize
}

// record feeds one batch's observed latency into the controller's EMA and,
// if adaptive batching is enabled, adjusts currentSize for the next batch.
// The EMA uses a fixed smoothing factor so a single slow batch cannot
// collapse the target size to its floor in one step.
func (c *sizeController) record(elapsedMillis float64) {
	const emaAlpha = 0.3
	if !c.haveEMA {
		c.emaMillis = elapsedMillis
		c.haveEMA = true
	} else {
		c.emaMillis = emaAlpha*elapsedMillis + (1-emaAlpha)*c.emaMillis
	}

	if !c.settings.Enabled {
		return
	}

	target := c.settings.TargetMillis
	switch {
	case c.emaMillis < target*0.8:
		c.currentSize = int(float64(c.currentSize) * 1.25)
	case c.emaMillis > target*1.25:
		c.currentSize = int(float64(c.currentSize) * 0.75)
	}
	c.currentSize = clamp(c.currentSize, c.settings.Minimum, c.settings.Maximum)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Metrics is the controller's observable state (§4.8 "Metrics exposed").
type Metrics struct {
	CurrentBatchSize int
	EMAMillis        float64
}

func (c *sizeController) metrics() Metrics {
	return Metrics{CurrentBatchSize: c.currentSize, EMAMillis: c.emaMillis}
}
