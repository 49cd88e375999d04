// Package prompt assembles model-ready message lists under a token budget.
// Layered content (system prompt, step scope, skill content, prior context,
// conversation turns) is fitted into the context limit minus a reserved
// output window. Compaction trims continuation transcripts that outgrow
// the input budget.
package prompt

import (
	"math"

	"github.com/charmbracelet/log"

	"github.com/ferretbot/ferretbot/internal/logging"
	"github.com/ferretbot/ferretbot/internal/session"
)

// Layer names. Budgets are keyed by these.
const (
	LayerSystem       = "system"
	LayerStep         = "step"
	LayerSkills       = "skills"
	LayerPrior        = "prior"
	LayerConversation = "conversation"

	// LayerUser tracks the non-negotiable user input in usage reports. It
	// has no budget; input is never dropped.
	LayerUser = "user"
)

// Defaults for the budget arithmetic.
const (
	DefaultContextLimit  = 32000
	DefaultSafetyBuffer  = 32
	DefaultCharsPerToken = 4.0
	DefaultSafetyMargin  = 1.1

	minOutputReserve = 256
	maxOutputReserve = 4096

	truncationSentinel = "..."
)

// layerOrder is the allocation sequence. The four fixed layers fill first;
// conversation consumes what remains of its cap.
var layerOrder = []string{LayerSystem, LayerStep, LayerSkills, LayerPrior, LayerConversation}

var defaultWeights = map[string]float64{
	LayerSystem:       0.20,
	LayerStep:         0.25,
	LayerSkills:       0.20,
	LayerPrior:        0.15,
	LayerConversation: 0.20,
}

var defaultMinimums = map[string]int{
	LayerSystem:       256,
	LayerStep:         256,
	LayerSkills:       128,
	LayerPrior:        128,
	LayerConversation: 256,
}

// Config tunes the assembler. Zero values take the documented defaults;
// OutputReserve is clamped into [256, 4096] and defaults to 15% of the
// context limit.
type Config struct {
	ContextLimit  int
	OutputReserve int
	SafetyBuffer  int
	CharsPerToken float64
	SafetyMargin  float64

	// Budgets overrides per-layer token budgets. Unknown layer names are
	// ignored.
	Budgets map[string]int
}

func (c Config) withDefaults() Config {
	if c.ContextLimit <= 0 {
		c.ContextLimit = DefaultContextLimit
	}
	if c.OutputReserve <= 0 {
		c.OutputReserve = int(math.Ceil(float64(c.ContextLimit) * 0.15))
	}
	if c.OutputReserve < minOutputReserve {
		c.OutputReserve = minOutputReserve
	}
	if c.OutputReserve > maxOutputReserve {
		c.OutputReserve = maxOutputReserve
	}
	if c.SafetyBuffer <= 0 {
		c.SafetyBuffer = DefaultSafetyBuffer
	}
	if c.CharsPerToken <= 0 {
		c.CharsPerToken = DefaultCharsPerToken
	}
	if c.SafetyMargin <= 0 {
		c.SafetyMargin = DefaultSafetyMargin
	}
	return c
}

// Assembler builds message lists for one configured budget.
type Assembler struct {
	cfg Config
	log *log.Logger
}

// New returns an assembler with defaults applied to cfg.
func New(cfg Config) *Assembler {
	return &Assembler{cfg: cfg.withDefaults(), log: logging.New("prompt")}
}

// Config returns the effective configuration after defaulting.
func (a *Assembler) Config() Config {
	return a.cfg
}

// InputBudget is the token allowance for everything sent to the model.
func (a *Assembler) InputBudget() int {
	return a.cfg.ContextLimit - a.cfg.OutputReserve
}

// LayerBudget is the resolved token allowance for one named layer. Callers
// gathering layer content ahead of a Build use it as the collection cap.
func (a *Assembler) LayerBudget(layer string) int {
	return a.layerBudgets()[layer]
}

// EstimateTokens approximates the token cost of text from its length with
// a safety margin, rounded up.
func (a *Assembler) EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	return int(math.Ceil(float64(len(text)) / a.cfg.CharsPerToken * a.cfg.SafetyMargin))
}

func (a *Assembler) estimateMessages(messages []session.Message) int {
	total := 0
	for _, m := range messages {
		total += a.EstimateTokens(m.Content)
	}
	return total
}

// charBudget inverts the token estimate: the longest text that fits the
// allowance.
func (a *Assembler) charBudget(tokens int) int {
	return int(float64(tokens) * a.cfg.CharsPerToken / a.cfg.SafetyMargin)
}

// truncate fits text into a token allowance, marking clipped text with a
// sentinel that counts against the same allowance.
func (a *Assembler) truncate(text string, tokens int) string {
	if a.EstimateTokens(text) <= tokens {
		return text
	}
	keep := a.charBudget(tokens) - len(truncationSentinel)
	if keep < 0 {
		keep = 0
	}
	runes := []rune(text)
	if keep > len(runes) {
		keep = len(runes)
	}
	return string(runes[:keep]) + truncationSentinel
}

// layerBudgets resolves per-layer allowances: explicit overrides where
// provided, otherwise weight-with-minimum defaults, scaled down
// proportionally with the rounding remainder handed out in layer order
// when the total exceeds the input budget.
func (a *Assembler) layerBudgets() map[string]int {
	input := a.InputBudget()
	budgets := make(map[string]int, len(layerOrder))
	total := 0
	for _, layer := range layerOrder {
		b, ok := a.cfg.Budgets[layer]
		if !ok {
			b = int(defaultWeights[layer] * float64(input))
			if minimum := defaultMinimums[layer]; b < minimum {
				b = minimum
			}
		}
		if b < 0 {
			b = 0
		}
		budgets[layer] = b
		total += b
	}
	if total <= input || total == 0 {
		return budgets
	}

	scaled := make(map[string]int, len(budgets))
	used := 0
	for _, layer := range layerOrder {
		s := budgets[layer] * input / total
		scaled[layer] = s
		used += s
	}
	for _, layer := range layerOrder {
		if used >= input {
			break
		}
		scaled[layer]++
		used++
	}
	return scaled
}

// Request carries the content candidates for one assembly. Empty layers
// are skipped. Turns are chronological; Build selects from the newest
// backwards.
type Request struct {
	System    string
	Step      string
	Skills    string
	Prior     string
	Turns     []session.Message
	UserInput string
}

// Usage reports the token accounting of a build.
type Usage struct {
	Input  int            `json:"inputTokens"`
	Layers map[string]int `json:"layers,omitempty"`
}

// Result is an assembled prompt.
type Result struct {
	Messages        []session.Message `json:"messages"`
	Usage           Usage             `json:"usage"`
	MaxOutputTokens int               `json:"maxOutputTokens"`
}

// Build assembles the message list: system prompt, step scope, skill
// content, prior context, conversation turns, then the user input. Each
// layer is charged against the smaller of its budget and the remaining
// input budget; oversized texts are truncated rather than dropped. The
// user input is never dropped or truncated.
func (a *Assembler) Build(req Request) *Result {
	budgets := a.layerBudgets()
	input := a.InputBudget()
	usage := Usage{Layers: make(map[string]int)}
	remaining := input
	var messages []session.Message

	addLayer := func(layer, text string) {
		if text == "" || remaining <= 0 {
			return
		}
		allowance := budgets[layer]
		if allowance > remaining {
			allowance = remaining
		}
		if allowance <= 0 {
			return
		}
		fitted := a.truncate(text, allowance)
		cost := a.EstimateTokens(fitted)
		messages = append(messages, session.Message{Role: session.RoleSystem, Content: fitted})
		usage.Layers[layer] = cost
		remaining -= cost
	}

	addLayer(LayerSystem, req.System)
	addLayer(LayerStep, req.Step)
	if req.Skills != "" {
		addLayer(LayerSkills, "Skill content:\n"+req.Skills)
	}
	addLayer(LayerPrior, req.Prior)

	// Conversation: cost turns newest to oldest until the cap, then emit
	// the survivors in chronological order.
	convCap := budgets[LayerConversation]
	if convCap > remaining {
		convCap = remaining
	}
	var picked []session.Message
	spent := 0
	for i := len(req.Turns) - 1; i >= 0; i-- {
		cost := a.EstimateTokens(req.Turns[i].Content)
		if spent+cost > convCap {
			break
		}
		picked = append(picked, req.Turns[i])
		spent += cost
	}
	for i := len(picked) - 1; i >= 0; i-- {
		messages = append(messages, picked[i])
	}
	if spent > 0 {
		usage.Layers[LayerConversation] = spent
		remaining -= spent
	}

	if req.UserInput != "" {
		cost := a.EstimateTokens(req.UserInput)
		messages = append(messages, session.Message{Role: session.RoleUser, Content: req.UserInput})
		usage.Layers[LayerUser] = cost
		remaining -= cost
	}

	usage.Input = input - remaining
	maxOut := a.cfg.ContextLimit - usage.Input - a.cfg.SafetyBuffer
	if maxOut < 1 {
		maxOut = 1
	}
	if len(usage.Layers) == 0 {
		usage.Layers = nil
	}

	a.log.Debug("prompt assembled",
		"messages", len(messages), "inputTokens", usage.Input, "maxOutput", maxOut)
	return &Result{Messages: messages, Usage: usage, MaxOutputTokens: maxOut}
}
