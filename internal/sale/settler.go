package sale

import (
	"log"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
)

// AutoSettler confirms every payment immediately. Used when payments are
// settled out of band and the operator records purchases after the fact.
type AutoSettler struct{}

func (AutoSettler) Confirm(purchaseID uuid.UUID, investor, instrument string, amount *uint256.Int) error {
	log.Printf("[INFO] payment auto-confirmed: purchase=%s investor=%s %s %s base units",
		purchaseID, investor, instrument, amount.Dec())
	return nil
}
