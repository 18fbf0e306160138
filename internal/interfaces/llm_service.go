package interfaces

import (
	"context"

	"github.com/ternarybob/attesto/internal/models"
)

// LLMService is the structured-extraction contract backing the vision tier
// and the text fallback pass. Both operations are schema-constrained: the
// provider must return rows shaped like the services table.
type LLMService interface {
	// ExtractServicesFromText parses a services list out of concatenated
	// document text.
	ExtractServicesFromText(ctx context.Context, text string) ([]models.Service, error)

	// ExtractServicesFromImage runs multimodal extraction over one page
	// image (the vision tier).
	ExtractServicesFromImage(ctx context.Context, imagePath string) ([]models.Service, error)

	// ExtractRequirementsFromText parses tender requirements out of a
	// notice's text.
	ExtractRequirementsFromText(ctx context.Context, text string) ([]models.Requirement, error)

	// ExtractAttestationMetadata pulls the issuing entity and issue date out
	// of an attestation's text. Fields the document does not state come back
	// empty.
	ExtractAttestationMetadata(ctx context.Context, text string) (models.AttestationMetadata, error)

	// ProviderName identifies the backing provider for logging and cost
	// attribution.
	ProviderName() string
}
