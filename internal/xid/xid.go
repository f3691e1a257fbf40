package xid

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const referenceTokenLength = 20

func New(prefix string) string {
	return fmt.Sprintf("%s-%s", prefix, uuid.NewString())
}

// Reference returns a human-facing document number such as GR-3F9A... with a
// 20 character uppercase token.
func Reference(prefix string) string {
	token := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return fmt.Sprintf("%s-%s", prefix, token[:referenceTokenLength])
}
