package execution

import (
	"fmt"

	"github.com/google/uuid"
)

func NewRunID() string {
	return fmt.Sprintf("run_%s", uuid.NewString())
}
