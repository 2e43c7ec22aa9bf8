package pdb

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIdentifyChainSeg(t *testing.T) {
	lines := []string{
		"ATOM      3  CA  ARG C   4      37.080  43.455  -3.421  1.00  0.00      S1   C  ",
		"ATOM      3  CA  GLU A   6      33.861  45.127  -2.233  1.00  0.00      B    C  ",
		"TER",
		"ATOM      3  CA  ALA C   7      35.081  45.036   1.305  1.00  0.00      S2   C  ",
	}

	segs, chains := IdentifyChainSeg(lines, true)
	assert.Equal(t, []string{"B", "S"}, segs)
	assert.Equal(t, []string{"A", "C"}, chains)

	segs, chains = IdentifyChainSeg(lines, false)
	assert.Equal(t, []string{"S", "B"}, segs)
	assert.Equal(t, []string{"C", "A"}, chains)

	assert.Equal(t, map[string]bool{"A": true, "C": true}, ReadChainIDs(lines))
	assert.Equal(t, map[string]bool{"S1": true, "S2": true, "B": true}, ReadSegIDs(lines))
}

func TestReplaceChain(t *testing.T) {
	in := []string{"ATOM      3  CA  GLU A   6      33.861  45.127  -2.233  1.00  0.00      A       "}
	want := []string{"ATOM      3  CA  GLU B   6      33.861  45.127  -2.233  1.00  0.00      A       "}

	assert.Equal(t, want, ReplaceChain(in, "B"))
}

func TestSwapSegIDChain(t *testing.T) {
	in := []string{
		"ATOM      3  CA  GLU     6      33.861  45.127  -2.233  1.00  0.00      X       ",
		"REMARK untouched",
	}
	want := []string{
		"ATOM      3  CA  GLU X   6      33.861  45.127  -2.233  1.00  0.00      X       ",
		"REMARK untouched",
	}

	assert.Equal(t, want, SwapSegIDChain(in))
}

func TestCorrectEqualChainSegIDs(t *testing.T) {
	repeated := [][]string{
		{
			"ATOM      3  CA  ARG B   4      37.080  43.455  -3.421  1.00  0.00           C  ",
			"ATOM      3  CA  GLU B   6      33.861  45.127  -2.233  1.00  0.00           C  ",
			"ATOM      3  CA  ALA B   7      35.081  45.036   1.305  1.00  0.00           C  ",
		},
		{
			"ATOM      3  CA  ARG B   4      37.080  43.455  -3.421  1.00  0.00           C  ",
			"ATOM      3  CA  GLU B   6      33.861  45.127  -2.233  1.00  0.00           C  ",
			"ATOM      3  CA  ALA B   7      35.081  45.036   1.305  1.00  0.00           C  ",
		},
	}
	repeatedWant := [][]string{
		repeated[0],
		{
			"ATOM      3  CA  ARG A   4      37.080  43.455  -3.421  1.00  0.00      A    C  ",
			"ATOM      3  CA  GLU A   6      33.861  45.127  -2.233  1.00  0.00      A    C  ",
			"ATOM      3  CA  ALA A   7      35.081  45.036   1.305  1.00  0.00      A    C  ",
		},
	}

	distinct := [][]string{
		{
			"ATOM      3  CA  ARG A   4      37.080  43.455  -3.421  1.00  0.00           C  ",
			"ATOM      3  CA  GLU A   6      33.861  45.127  -2.233  1.00  0.00           C  ",
		},
		{
			"ATOM      3  CA  ARG B   4      37.080  43.455  -3.421  1.00  0.00           C  ",
			"ATOM      3  CA  GLU B   6      33.861  45.127  -2.233  1.00  0.00           C  ",
		},
	}

	tests := []struct {
		name string
		in   [][]string
		want [][]string
	}{
		{"repeated chain renamed", repeated, repeatedWant},
		{"distinct chains untouched", distinct, distinct},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CorrectEqualChainSegIDs(tt.in))
		})
	}
}

func TestHomogenizeChains(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{
			name: "first chain wins including TER",
			in: []string{
				"ATOM      3  CA  ARG A   4      37.080  43.455  -3.421  1.00  0.00           C  ",
				"ATOM      3  CA  GLU B   6      33.861  45.127  -2.233  1.00  0.00           C  ",
				"TER",
				"ATOM      3  CA  ALA C   7      35.081  45.036   1.305  1.00  0.00           C  ",
			},
			want: []string{
				"ATOM      3  CA  ARG A   4      37.080  43.455  -3.421  1.00  0.00      A    C  ",
				"ATOM      3  CA  GLU A   6      33.861  45.127  -2.233  1.00  0.00      A    C  ",
				"TER                  A                                                          ",
				"ATOM      3  CA  ALA A   7      35.081  45.036   1.305  1.00  0.00      A    C  ",
			},
		},
		{
			name: "order of appearance",
			in: []string{
				"ATOM      3  CA  ARG C   4      37.080  43.455  -3.421  1.00  0.00           C  ",
				"ATOM      3  CA  GLU B   6      33.861  45.127  -2.233  1.00  0.00           C  ",
				"ATOM      3  CA  ALA A   7      35.081  45.036   1.305  1.00  0.00           C  ",
			},
			want: []string{
				"ATOM      3  CA  ARG C   4      37.080  43.455  -3.421  1.00  0.00      C    C  ",
				"ATOM      3  CA  GLU C   6      33.861  45.127  -2.233  1.00  0.00      C    C  ",
				"ATOM      3  CA  ALA C   7      35.081  45.036   1.305  1.00  0.00      C    C  ",
			},
		},
		{
			name: "single chain untouched",
			in: []string{
				"ATOM      3  CA  ARG C   4      37.080  43.455  -3.421  1.00  0.00           C  ",
			},
			want: []string{
				"ATOM      3  CA  ARG C   4      37.080  43.455  -3.421  1.00  0.00           C  ",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HomogenizeChains(tt.in))
		})
	}
}

func TestSolveNoChainIDNoSegID(t *testing.T) {
	expectedA := []string{
		"ATOM      3  CA  ARG A   4      37.080  43.455  -3.421  1.00  0.00      A       ",
		"ATOM      3  CA  GLU A   6      33.861  45.127  -2.233  1.00  0.00      A       ",
		"ATOM      3  CA  ALA A   7      35.081  45.036   1.305  1.00  0.00      A       ",
	}

	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{
			name: "neither chain nor segid",
			in: []string{
				"ATOM      3  CA  ARG     4      37.080  43.455  -3.421  1.00  0.00              ",
				"ATOM      3  CA  GLU     6      33.861  45.127  -2.233  1.00  0.00              ",
				"ATOM      3  CA  ALA     7      35.081  45.036   1.305  1.00  0.00              ",
			},
			want: expectedA,
		},
		{
			name: "chain only",
			in: []string{
				"ATOM      3  CA  ARG A   4      37.080  43.455  -3.421  1.00  0.00              ",
				"ATOM      3  CA  GLU A   6      33.861  45.127  -2.233  1.00  0.00              ",
				"ATOM      3  CA  ALA A   7      35.081  45.036   1.305  1.00  0.00              ",
			},
			want: expectedA,
		},
		{
			name: "segid only",
			in: []string{
				"ATOM      3  CA  ARG     4      37.080  43.455  -3.421  1.00  0.00      A       ",
				"ATOM      3  CA  GLU     6      33.861  45.127  -2.233  1.00  0.00      A       ",
				"ATOM      3  CA  ALA     7      35.081  45.036   1.305  1.00  0.00      A       ",
			},
			want: expectedA,
		},
		{
			name: "chain wins over segid",
			in: []string{
				"ATOM      3  CA  ARG B   4      37.080  43.455  -3.421  1.00  0.00      A       ",
				"ATOM      3  CA  GLU B   6      33.861  45.127  -2.233  1.00  0.00      A       ",
				"ATOM      3  CA  ALA B   7      35.081  45.036   1.305  1.00  0.00      A       ",
			},
			want: []string{
				"ATOM      3  CA  ARG B   4      37.080  43.455  -3.421  1.00  0.00      B       ",
				"ATOM      3  CA  GLU B   6      33.861  45.127  -2.233  1.00  0.00      B       ",
				"ATOM      3  CA  ALA B   7      35.081  45.036   1.305  1.00  0.00      B       ",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SolveNoChainIDNoSegID(tt.in))
		})
	}
}
