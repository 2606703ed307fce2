package cache

import "fmt"

func RecordKey(jobID string) string {
	return fmt.Sprintf("captcha:result:%s", jobID)
}
