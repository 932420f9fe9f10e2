package cache

import (
	"fmt"

	"github.com/google/uuid"
)

func ImportStatusKey(jobID uuid.UUID) string {
	return fmt.Sprintf("import:%s", jobID)
}

func RateLimitKey(subject string) string {
	return fmt.Sprintf("ratelimit:%s", subject)
}

func OIDCStateKey(state string) string {
	return fmt.Sprintf("oidc:state:%s", state)
}

func ImageProxyKey(urlHash string) string {
	return fmt.Sprintf("image:proxy:%s", urlHash)
}
