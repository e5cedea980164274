package entity

// Message represents an immutable message in a conversation log
type Message struct {
	Id             string `json:"id" gorm:"column:id;primaryKey;size:64"`
	ConversationId string `json:"conversation_id" gorm:"column:conversation_id;size:64;uniqueIndex:uk_conv_seq"`
	Seq            int64  `json:"seq" gorm:"column:seq;uniqueIndex:uk_conv_seq"`
	SenderId       string `json:"sender_id" gorm:"column:sender_id;size:64;uniqueIndex:uk_sender_client"`
	ClientMsgId    string `json:"client_msg_id" gorm:"column:client_msg_id;size:64;uniqueIndex:uk_sender_client"`
	Content        string `json:"content" gorm:"column:content;type:text"`
	CreatedAt      int64  `json:"created_at" gorm:"column:created_at;autoCreateTime:milli"`
}

// TableName returns the table name for Message
func (Message) TableName() string {
	return "messages"
}

// Clone returns a copy of m
func (m *Message) Clone() *Message {
	cp := *m
	return &cp
}

// SeqConversation represents the per-conversation sequence counter
type SeqConversation struct {
	ConversationId string `json:"conversation_id" gorm:"column:conversation_id;primaryKey;size:64"`
	MaxSeq         int64  `json:"max_seq" gorm:"column:max_seq"`
}

// TableName returns the table name for SeqConversation
func (SeqConversation) TableName() string {
	return "seq_conversations"
}
