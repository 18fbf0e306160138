package normalize

import "strings"

// stopwords are Portuguese prepositions/articles plus unit-like tokens that
// carry no descriptive weight in a services table.
var stopwords = map[string]bool{
	"DE": true, "DA": true, "DO": true, "DAS": true, "DOS": true,
	"EM": true, "NO": true, "NA": true, "NOS": true, "NAS": true,
	"AO": true, "AOS": true, "COM": true, "SEM": true, "PARA": true,
	"POR": true, "PELO": true, "PELA": true, "ATE": true, "SOB": true,
	"SOBRE": true, "UM": true, "UMA": true, "AS": true, "OS": true,
	"E": true, "OU": true, "TIPO": true,
	// unit-like
	"M2": true, "M3": true, "UN": true, "KG": true, "KM": true,
	"ML": true, "CM": true, "MES": true, "UNIDADE": true, "METRO": true,
	"METROS": true,
}

// Keywords tokenizes the canonical form of a description and drops stopwords
// and single-character tokens. The result is the keyword bag used by
// Similarity and by the matcher's gates.
func Keywords(description string) map[string]bool {
	canonical := Description(description)
	set := make(map[string]bool)
	for _, tok := range strings.FieldsFunc(canonical, func(r rune) bool {
		return r == ' ' || r == ','
	}) {
		if len(tok) <= 1 || stopwords[tok] {
			continue
		}
		set[tok] = true
	}
	return set
}

// CommonKeywords returns how many keywords two bags share.
func CommonKeywords(a, b map[string]bool) int {
	if len(a) > len(b) {
		a, b = b, a
	}
	n := 0
	for tok := range a {
		if b[tok] {
			n++
		}
	}
	return n
}

// Similarity scores two descriptions in [0,1] as the keyword intersection
// divided by the size of the LARGER bag. The asymmetric denominator is
// deliberate: a short description cannot cover a long one just by being a
// keyword subset of it.
func Similarity(a, b string) float64 {
	ka, kb := Keywords(a), Keywords(b)
	return SimilarityOfSets(ka, kb)
}

// SimilarityOfSets is Similarity over pre-computed keyword bags.
func SimilarityOfSets(ka, kb map[string]bool) float64 {
	if len(ka) == 0 || len(kb) == 0 {
		return 0
	}
	common := CommonKeywords(ka, kb)
	max := len(ka)
	if len(kb) > max {
		max = len(kb)
	}
	return float64(common) / float64(max)
}
