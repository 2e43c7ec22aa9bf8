package pdb

import (
	"fmt"
	"strconv"
	"strings"
)

// ModelsDifferError reports an ensemble MODEL whose atoms differ from the first one
type ModelsDifferError struct {
	Model int
}

func (e *ModelsDifferError) Error() string {
	return fmt.Sprintf("Labels in MODEL %d differ from MODEL 1.", e.Model)
}

// Model is one MODEL ... ENDMDL block of an ensemble
type Model struct {
	Number int
	Lines  []string
}

// IsEnsemble reports whether lines hold at least one MODEL record
func IsEnsemble(lines []string) bool {
	for _, line := range lines {
		if strings.HasPrefix(line, "MODEL") {
			return true
		}
	}
	return false
}

// ReadModels returns the MODEL blocks of lines, excluding the MODEL and ENDMDL
// records themselves. A model without a readable serial is numbered by position.
func ReadModels(lines []string) []Model {
	var models []Model
	var current *Model

	for _, line := range lines {
		switch {
		case strings.HasPrefix(line, "MODEL"):
			number, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(line, "MODEL")))
			if err != nil {
				number = len(models) + 1
			}
			models = append(models, Model{Number: number})
			current = &models[len(models)-1]
		case strings.HasPrefix(line, "ENDMDL"):
			current = nil
		case current != nil:
			current.Lines = append(current.Lines, line)
		}
	}
	return models
}

// ModelsHaveSameLabels checks that every model holds the same atoms as the first,
// comparing the name through insertion code columns of ATOM/HETATM records.
func ModelsHaveSameLabels(lines []string) error {
	models := ReadModels(lines)
	if len(models) < 2 {
		return nil
	}

	reference := atomLabels(models[0].Lines)
	for _, model := range models[1:] {
		if !equalLabels(reference, atomLabels(model.Lines)) {
			return &ModelsDifferError{Model: model.Number}
		}
	}
	return nil
}

func atomLabels(lines []string) []string {
	var labels []string
	for _, line := range lines {
		if IsAtom(line) {
			labels = append(labels, Field(line, Column{ColName.Start, ColICode.End}))
		}
	}
	return labels
}

func equalLabels(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
