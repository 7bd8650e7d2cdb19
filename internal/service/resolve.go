package service

import "github.com/saadjs/nutrilog/internal/model"

const (
	AutoAcceptThreshold = 0.80
	ChoiceThreshold     = 0.60
	maxChoices          = 3
)

type ResolutionStatus string

const (
	ResolutionOK      ResolutionStatus = "ok"
	ResolutionChoices ResolutionStatus = "choices"
	ResolutionAsk     ResolutionStatus = "ask"
)

type Candidate struct {
	Product    model.Product
	Provider   string
	Confidence float64
	Reasons    []string
}

type Resolution struct {
	Status  ResolutionStatus
	Best    *Candidate
	Choices []Candidate
	// Err is ErrNoCandidates when the pool was empty.
	Err error
}

// Arbitrate turns a pool ranked by descending confidence into a decision.
func Arbitrate(pool []Candidate) Resolution {
	if len(pool) == 0 {
		return Resolution{Status: ResolutionAsk, Err: ErrNoCandidates}
	}
	best := pool[0]
	top := pool
	if len(top) > maxChoices {
		top = top[:maxChoices]
	}
	choices := append([]Candidate(nil), top...)

	switch {
	case best.Confidence >= AutoAcceptThreshold:
		return Resolution{Status: ResolutionOK, Best: &best}
	case best.Confidence >= ChoiceThreshold:
		return Resolution{Status: ResolutionChoices, Best: &best, Choices: choices}
	default:
		return Resolution{Status: ResolutionAsk, Best: &best, Choices: choices}
	}
}
