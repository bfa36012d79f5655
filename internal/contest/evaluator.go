package contest

import (
	"log"
	"sort"
	"strconv"
	"strings"
)

// Result is the outcome of evaluating one answer.
type Result struct {
	IsCorrect bool
	Marks     int
}

// Grader evaluates one user answer against one question shape. One variant
// per question type keeps the per-shape rules out of a single switch body.
type Grader interface {
	Grade(userAnswer []string) Result
}

// Evaluate grades a user answer against a question. It performs no I/O and
// is deterministic; unknown option texts are dropped (and logged) before
// index comparison.
func Evaluate(q *Question, userAnswer []string) Result {
	return GraderFor(q).Grade(userAnswer)
}

// GraderFor selects the grading variant for a question.
func GraderFor(q *Question) Grader {
	switch q.Type {
	case TypeInteger:
		return integerGrader{answer: q.IntegerAnswer, marks: q.Marks}
	case TypeMCQ:
		return mcqGrader{options: q.MCQOptions, correct: q.MCQCorrectOption, marks: q.Marks}
	case TypeSCQ:
		return scqGrader{options: q.SCQOptions, correct: q.SCQCorrectOption, marks: q.Marks}
	case TypeMatch:
		return matchGrader{options: q.MCQOptions, correct: q.MCQCorrectOption, marks: q.Marks}
	default:
		return unknownGrader{questionType: string(q.Type)}
	}
}

// integerGrader: full marks on an exact integer match, -1 otherwise.
type integerGrader struct {
	answer *int64
	marks  int
}

func (g integerGrader) Grade(userAnswer []string) Result {
	if g.answer == nil || len(userAnswer) != 1 {
		return Result{IsCorrect: false, Marks: -1}
	}
	value, err := strconv.ParseInt(strings.TrimSpace(userAnswer[0]), 10, 64)
	if err != nil {
		return Result{IsCorrect: false, Marks: -1}
	}
	if value == *g.answer {
		return Result{IsCorrect: true, Marks: g.marks}
	}
	return Result{IsCorrect: false, Marks: -1}
}

// mcqGrader: multi-correct with partial credit. Any wrong pick is a flat -2;
// an exact match is full marks; a strict subset of the correct set earns one
// mark per correct pick.
type mcqGrader struct {
	options []string
	correct []int
	marks   int
}

func (g mcqGrader) Grade(userAnswer []string) Result {
	if len(g.correct) == 0 {
		return Result{IsCorrect: false, Marks: 0}
	}

	picked := mapTextsToIndices(userAnswer, g.options)
	correct := make(map[int]bool, len(g.correct))
	for _, idx := range g.correct {
		correct[idx] = true
	}

	matched := 0
	for idx := range picked {
		if !correct[idx] {
			return Result{IsCorrect: false, Marks: -2}
		}
		matched++
	}

	if matched == len(correct) {
		return Result{IsCorrect: true, Marks: g.marks}
	}
	return Result{IsCorrect: false, Marks: matched}
}

// scqGrader: single-correct. Full marks on the right option, -1 otherwise.
type scqGrader struct {
	options []string
	correct *int
	marks   int
}

func (g scqGrader) Grade(userAnswer []string) Result {
	if g.correct == nil || len(userAnswer) != 1 {
		return Result{IsCorrect: false, Marks: -1}
	}
	idx, ok := indexOfOption(userAnswer[0], g.options)
	if !ok {
		return Result{IsCorrect: false, Marks: -1}
	}
	if idx == *g.correct {
		return Result{IsCorrect: true, Marks: g.marks}
	}
	return Result{IsCorrect: false, Marks: -1}
}

// matchGrader: like MCQ but all-or-nothing. Full marks when the sorted user
// indices equal the sorted correct indices, -1 in every other case.
type matchGrader struct {
	options []string
	correct []int
	marks   int
}

func (g matchGrader) Grade(userAnswer []string) Result {
	if len(g.correct) == 0 {
		return Result{IsCorrect: false, Marks: 0}
	}

	picked := mapTextsToIndices(userAnswer, g.options)
	indices := make([]int, 0, len(picked))
	for idx := range picked {
		indices = append(indices, idx)
	}
	sort.Ints(indices)

	expected := append([]int(nil), g.correct...)
	sort.Ints(expected)

	if len(indices) == len(expected) {
		equal := true
		for i := range indices {
			if indices[i] != expected[i] {
				equal = false
				break
			}
		}
		if equal {
			return Result{IsCorrect: true, Marks: g.marks}
		}
	}
	return Result{IsCorrect: false, Marks: -1}
}

type unknownGrader struct {
	questionType string
}

func (g unknownGrader) Grade([]string) Result {
	log.Printf("Unknown question type %q, scoring zero", g.questionType)
	return Result{IsCorrect: false, Marks: 0}
}

// mapTextsToIndices resolves answer texts to option indices by trimmed
// equality. Texts that match no option are dropped. Duplicate texts collapse
// to one index.
func mapTextsToIndices(texts, options []string) map[int]bool {
	picked := make(map[int]bool, len(texts))
	for _, text := range texts {
		idx, ok := indexOfOption(text, options)
		if !ok {
			log.Printf("Dropping answer text with no matching option: %q", text)
			continue
		}
		picked[idx] = true
	}
	return picked
}

func indexOfOption(text string, options []string) (int, bool) {
	trimmed := strings.TrimSpace(text)
	for i, opt := range options {
		if strings.TrimSpace(opt) == trimmed {
			return i, true
		}
	}
	return 0, false
}
