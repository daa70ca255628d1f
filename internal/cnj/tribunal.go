package cnj

import (
	"strconv"
	"strings"
)

const (
	segmentFederal = "4"
	segmentLabor   = "5"
	segmentState   = "8"

	aliasFederalDistrict = "tjdft"
)

// stateCourts maps the TR code of segment 8 identifiers to Brazilian state codes.
var stateCourts = map[string]string{
	"01": "AC",
	"02": "AL",
	"03": "AP",
	"04": "AM",
	"05": "BA",
	"06": "CE",
	"07": "DF",
	"08": "ES",
	"09": "GO",
	"10": "MA",
	"11": "MT",
	"12": "MS",
	"13": "MG",
	"14": "PA",
	"15": "PB",
	"16": "PR",
	"17": "PE",
	"18": "PI",
	"19": "RJ",
	"20": "RN",
	"21": "RS",
	"22": "RO",
	"23": "RR",
	"24": "SC",
	"25": "SE",
	"26": "SP",
	"27": "TO",
}

// TribunalAlias derives the routing key of the judiciary search endpoint
// (trf1, trt5, tjsp, tjdft...). Unsupported segments report false.
func TribunalAlias(id Identifier) (string, bool) {
	switch id.Segment() {
	case segmentFederal:
		return numberedAlias("trf", id.Court())
	case segmentLabor:
		return numberedAlias("trt", id.Court())
	case segmentState:
		return stateAlias(id.Court())
	default:
		return "", false
	}
}

func numberedAlias(prefix, court string) (string, bool) {
	number, err := strconv.Atoi(court)
	if err != nil || number < 0 {
		return "", false
	}
	return prefix + strconv.Itoa(number), true
}

func stateAlias(court string) (string, bool) {
	if len(court) == 1 {
		court = "0" + court
	}
	state, ok := stateCourts[court]
	if !ok {
		return "", false
	}
	if state == "DF" {
		return aliasFederalDistrict, true
	}
	return "tj" + strings.ToLower(state), true
}
