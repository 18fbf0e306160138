// -----------------------------------------------------------------------
// Matcher gates - activity categories and mandatory-term filters
// -----------------------------------------------------------------------

package matcher

import (
	"strings"

	"github.com/ternarybob/attesto/internal/normalize"
)

// activityKeywords maps an activity tag to the canonical tokens of which at
// least one must appear in a qualifying service description. Tags and tokens
// follow the vocabulary of Brazilian procurement notices.
var activityKeywords = map[string][]string{
	"pavimentacao": {
		"PAVIMENTACAO", "PAVIMENTO", "ASFALT", "CBUQ", "RECAPEAMENTO",
		"IMPRIMACAO", "BINDER", "PMF", "TSD", "BLOQUETE", "PARALELEPIPEDO",
	},
	"terraplenagem": {
		"TERRAPLENAGEM", "ESCAVACAO", "ATERRO", "CORTE", "COMPACTACAO",
		"REGULARIZACAO", "BOTA FORA", "JAZIDA",
	},
	"drenagem": {
		"DRENAGEM", "DRENO", "BUEIRO", "GALERIA", "SARJETA", "CANALETA",
		"BOCA DE LOBO", "TUBO DE CONCRETO",
	},
	"edificacao": {
		"EDIFICACAO", "ALVENARIA", "CONCRETO ARMADO", "ESTRUTURA",
		"FUNDACAO", "COBERTURA", "REVESTIMENTO",
	},
	"saneamento": {
		"SANEAMENTO", "ESGOTO", "AGUA", "ADUTORA", "REDE COLETORA",
		"ESTACAO", "TRATAMENTO",
	},
	"eletrica": {
		"ELETRICA", "ILUMINACAO", "CABEAMENTO", "COBRE", "SUBESTACAO",
		"POSTE", "TRANSFORMADOR",
	},
	"sinalizacao": {
		"SINALIZACAO", "PLACA", "PINTURA VIARIA", "TACHAO", "SEMAFORO",
	},
}

// matchesActivity reports whether a canonical service description carries at
// least one keyword of the requirement's activity tag. Unknown tags pass:
// a tag without a vocabulary cannot reject anything.
func matchesActivity(activity, canonicalDesc string) bool {
	keywords, ok := activityKeywords[normalizeTag(activity)]
	if !ok {
		return true
	}
	for _, kw := range keywords {
		if strings.Contains(canonicalDesc, kw) {
			return true
		}
	}
	return false
}

// containsAnyTerm reports whether the canonical description contains at
// least one of the mandatory terms. Terms are canonicalized before the
// substring check so callers may pass them in document form.
func containsAnyTerm(canonicalDesc string, terms []string) bool {
	for _, term := range terms {
		t := normalize.Description(term)
		if t != "" && strings.Contains(canonicalDesc, t) {
			return true
		}
	}
	return false
}

func normalizeTag(tag string) string {
	return strings.ToLower(strings.TrimSpace(normalize.StripDiacritics(tag)))
}
