package pdb

import (
	"fmt"
	"strings"
)

// ionSigns maps the element symbol of a monoatomic ion to the sign of its usual charge
var ionSigns = map[string]byte{
	"ZN": '+', "NI": '+', "K": '+', "NA": '+', "CA": '+', "MG": '+',
	"MN": '+', "FE": '+', "CU": '+', "CO": '+', "CD": '+', "HG": '+',
	"F": '-', "CL": '-', "BR": '-', "I": '-',
}

type ionCharge struct {
	sign  byte
	value byte
}

func (c ionCharge) String() string {
	return string([]byte{c.sign, c.value})
}

// AddChargesToIons writes a consistent charge into the atom name, residue name,
// element and charge columns of HETATM ion records. The charge is taken from the
// atom name, then the charge column, then a trailing digit in the residue name
// carrying the ion's usual sign. Ions with no charge anywhere get their columns
// normalized without one.
func AddChargesToIons(lines []string) []string {
	out := make([]string, len(lines))
	for i, line := range lines {
		out[i] = chargeIon(line)
	}
	return out
}

func chargeIon(line string) string {
	if !strings.HasPrefix(line, "HETATM") {
		return line
	}

	name := TrimmedField(line, ColName)
	element, nameCharge := splitCharge(name)
	if _, ok := ionSigns[element]; !ok {
		return line
	}

	resName := TrimmedField(line, ColResName)
	resElement := strings.TrimRight(resName, "0123456789")
	if resElement != element {
		return line
	}

	charge, ok := nameCharge, nameCharge.sign != 0
	if !ok {
		_, charge = splitCharge(TrimmedField(line, ColCharge))
		ok = charge.sign != 0
	}
	if !ok && len(resName) > len(resElement) {
		charge = ionCharge{sign: ionSigns[element], value: resName[len(resName)-1]}
		ok = true
	}

	var atomName, residue, chargeCol string
	if ok {
		atomName = element + charge.String()
		residue = element + string(charge.value)
		chargeCol = charge.String()
	} else {
		atomName = element
		residue = element
		chargeCol = ""
	}
	if len(element) == 1 {
		atomName = " " + atomName
	}

	line = SetField(line, ColName, atomName)
	line = SetField(line, ColResName, fmt.Sprintf("%3s", residue))
	line = SetField(line, ColElement, fmt.Sprintf("%2s", element))
	return SetField(line, ColCharge, chargeCol)
}

// splitCharge separates a trailing charge written as "+2" or "2+" from value
func splitCharge(value string) (string, ionCharge) {
	if len(value) < 2 {
		return value, ionCharge{}
	}

	a, b := value[len(value)-2], value[len(value)-1]
	switch {
	case isSign(a) && isDigit(b):
		return value[:len(value)-2], ionCharge{sign: a, value: b}
	case isDigit(a) && isSign(b):
		return value[:len(value)-2], ionCharge{sign: b, value: a}
	}
	return value, ionCharge{}
}

func isSign(c byte) bool  { return c == '+' || c == '-' }
func isDigit(c byte) bool { return c >= '0' && c <= '9' }
