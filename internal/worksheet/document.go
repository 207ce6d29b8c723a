package worksheet

import (
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
)

const defaultInstructions = "Solve each problem. Show your work."

// Problem is one numbered arithmetic item.
type Problem struct {
	Number   int
	Left     int
	Right    int
	Operator string
	Answer   int
}

// Prompt renders the problem as printed on the worksheet.
func (p Problem) Prompt() string {
	return fmt.Sprintf("%d %s %d =", p.Left, p.Operator, p.Right)
}

// Solution renders the problem with its answer for the answer key.
func (p Problem) Solution() string {
	return p.Prompt() + " " + strconv.Itoa(p.Answer)
}

// Document is everything the renderer needs to lay out a worksheet.
type Document struct {
	Title            string
	Subtitle         string
	Instructions     string
	Problems         []Problem
	Columns          int
	ShowWorkSpace    bool
	PageSize         string
	Orientation      string
	IncludeAnswerKey bool
}

// Header holds the free-text parts of an export request.
type Header struct {
	Title        string
	Subtitle     string
	Instructions string
}

// BuildDocument assembles a deterministic document: the same configuration
// always yields the same problems.
func BuildDocument(cfg *Configuration, header Header) *Document {
	instructions := strings.TrimSpace(header.Instructions)
	if instructions == "" {
		instructions = defaultInstructions
	}
	return &Document{
		Title:            strings.TrimSpace(header.Title),
		Subtitle:         strings.TrimSpace(header.Subtitle),
		Instructions:     instructions,
		Problems:         generateProblems(cfg),
		Columns:          cfg.Layout.Columns,
		ShowWorkSpace:    cfg.Layout.ShowWorkSpace,
		PageSize:         cfg.PageSize,
		Orientation:      cfg.Orientation,
		IncludeAnswerKey: cfg.AnswerKeyEnabled(),
	}
}

type operandRange struct {
	max        int
	factorMax  int
	divisorMax int
}

var difficultyRanges = map[string]operandRange{
	"easy":   {max: 10, factorMax: 5, divisorMax: 5},
	"medium": {max: 50, factorMax: 12, divisorMax: 10},
	"hard":   {max: 999, factorMax: 25, divisorMax: 12},
}

func generateProblems(cfg *Configuration) []Problem {
	rng := rand.New(rand.NewPCG(uint64(cfg.Seed), uint64(len(cfg.ProblemTypes))))
	bounds, ok := difficultyRanges[cfg.Difficulty]
	if !ok {
		bounds = difficultyRanges[DefaultDifficulty]
	}

	problems := make([]Problem, cfg.ProblemCount)
	for i := range problems {
		kind := cfg.ProblemTypes[i%len(cfg.ProblemTypes)]
		problems[i] = generateProblem(rng, kind, bounds)
		problems[i].Number = i + 1
	}
	return problems
}

func generateProblem(rng *rand.Rand, kind string, bounds operandRange) Problem {
	switch kind {
	case "subtraction":
		a, b := rng.IntN(bounds.max+1), rng.IntN(bounds.max+1)
		if a < b {
			a, b = b, a
		}
		return Problem{Left: a, Right: b, Operator: "-", Answer: a - b}
	case "multiplication":
		a, b := rng.IntN(bounds.factorMax+1), rng.IntN(bounds.factorMax+1)
		return Problem{Left: a, Right: b, Operator: "×", Answer: a * b}
	case "division":
		divisor := rng.IntN(bounds.divisorMax) + 1
		quotient := rng.IntN(bounds.factorMax + 1)
		return Problem{Left: divisor * quotient, Right: divisor, Operator: "÷", Answer: quotient}
	default:
		a, b := rng.IntN(bounds.max+1), rng.IntN(bounds.max+1)
		return Problem{Left: a, Right: b, Operator: "+", Answer: a + b}
	}
}
