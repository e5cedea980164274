package entity

// User represents a portal user. The engine only reads this table.
type User struct {
	Id         string `json:"id" gorm:"column:id;primaryKey;size:64"`
	Identifier string `json:"identifier" gorm:"column:identifier;size:64;uniqueIndex"`
	Nickname   string `json:"nickname" gorm:"column:nickname"`
	Avatar     string `json:"avatar" gorm:"column:avatar"`
	CreatedAt  int64  `json:"created_at" gorm:"column:created_at;autoCreateTime:milli"`
	UpdatedAt  int64  `json:"updated_at" gorm:"column:updated_at;autoUpdateTime:milli"`
}

// TableName returns the table name for User
func (User) TableName() string {
	return "users"
}

// UserInfo represents public user info
type UserInfo struct {
	Id         string `json:"id"`
	Identifier string `json:"identifier"`
	Nickname   string `json:"nickname"`
	Avatar     string `json:"avatar"`
}

// ToUserInfo converts User to UserInfo
func (u *User) ToUserInfo() *UserInfo {
	return &UserInfo{
		Id:         u.Id,
		Identifier: u.Identifier,
		Nickname:   u.Nickname,
		Avatar:     u.Avatar,
	}
}

// DisplayName returns the best human-readable name for the user
func (u *UserInfo) DisplayName() string {
	if u.Nickname != "" {
		return u.Nickname
	}
	if u.Identifier != "" {
		return u.Identifier
	}
	return u.Id
}
