package cache

import (
	"fmt"
	"time"
)

const (
	UserKeyPrefix             = "user:%s"
	UserThreadsKeyPrefix      = "user:%s:threads"
	CommunityKeyPrefix        = "community:%s"
	CommunityThreadsKeyPrefix = "community:%s:threads"
	ThreadKeyPrefix           = "thread:%d"
)

const (
	UserTTL      = 5 * time.Minute
	CommunityTTL = 10 * time.Minute
	ThreadTTL    = 2 * time.Minute
	ListTTL      = time.Minute
)

func UserKey(externalID string) string {
	return fmt.Sprintf(UserKeyPrefix, externalID)
}

func UserThreadsKey(externalID string) string {
	return fmt.Sprintf(UserThreadsKeyPrefix, externalID)
}

func CommunityKey(externalID string) string {
	return fmt.Sprintf(CommunityKeyPrefix, externalID)
}

func CommunityThreadsKey(externalID string) string {
	return fmt.Sprintf(CommunityThreadsKeyPrefix, externalID)
}

func ThreadKey(threadID uint) string {
	return fmt.Sprintf(ThreadKeyPrefix, threadID)
}
