package crypto

import "fmt"

// AAD builders centralize the stable strings bound into each AEAD seal so that
// callers can't accidentally typo a purpose tag between encrypt and decrypt.

func ConversationTitleAAD(id string) []byte { return []byte(fmt.Sprintf("conversation.title:%s", id)) }

func MessageContentAAD(id string) []byte { return []byte(fmt.Sprintf("message.content:%s", id)) }

func AttachmentBytesAAD(sha256Hex string) []byte {
	return []byte(fmt.Sprintf("attachment.bytes:%s", sha256Hex))
}

func AttachmentTitleAAD(sha256Hex string) []byte {
	return []byte(fmt.Sprintf("attachment.title:%s", sha256Hex))
}

func TodoTitleAAD(id string) []byte { return []byte(fmt.Sprintf("todo.title:%s", id)) }

func EventTitleAAD(id string) []byte { return []byte(fmt.Sprintf("event.title:%s", id)) }

func TagNameAAD(id string) []byte { return []byte(fmt.Sprintf("tag.name:%s", id)) }

func TopicThreadTitleAAD(id string) []byte {
	return []byte(fmt.Sprintf("topic_thread.title:%s", id))
}

func TodoActivityContentAAD(id string) []byte {
	return []byte(fmt.Sprintf("todo_activity.content:%s", id))
}

func LlmProfileFieldAAD(id, field string) []byte {
	return []byte(fmt.Sprintf("llm_profile.%s:%s", field, id))
}

func EmbeddingProfileFieldAAD(id, field string) []byte {
	return []byte(fmt.Sprintf("embedding_profile.%s:%s", field, id))
}

func SyncOpAAD(deviceID string, seq uint64) []byte {
	return []byte(fmt.Sprintf("sync.ops:%s:%d", deviceID, seq))
}

func SyncAttachmentAAD(sha256Hex string) []byte {
	return []byte(fmt.Sprintf("sync.attachment.bytes:%s", sha256Hex))
}
