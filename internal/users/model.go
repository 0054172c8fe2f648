package users

// Status values of a user row.
const (
	StatusActive = 1
)

// User is a registered member. PrivateKeyHash never leaves the package in responses.
type User struct {
	ID               int64  `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	FullName         string `gorm:"column:fullname;size:200;not null" json:"fullname"`
	Username         string `gorm:"column:username;size:190;not null;uniqueIndex:idx_users_username" json:"username"`
	PrivateKeyHash   string `gorm:"column:private_key;size:100;not null" json:"-"`
	Status           int    `gorm:"column:status;not null;default:1" json:"status"`
	CreatedAtSeconds int64  `gorm:"column:created_at_s;not null" json:"created_at_s"`
}

// TableName provides the explicit table binding for GORM.
func (User) TableName() string {
	return "users"
}

// LoginRecord is the single live login of a username.
type LoginRecord struct {
	Username           string `gorm:"column:username;primaryKey;size:190"`
	Token              string `gorm:"column:token;type:text;not null"`
	LoggedInAtSeconds  int64  `gorm:"column:logged_in_at_s;not null"`
	LoggedOutAtSeconds *int64 `gorm:"column:logged_out_at_s"`
}

// TableName provides the explicit table binding for GORM.
func (LoginRecord) TableName() string {
	return "user_login"
}

// DeactivatedUser archives an account removed by Deactivate.
type DeactivatedUser struct {
	ID                   int64  `gorm:"column:id;primaryKey;autoIncrement"`
	UserID               int64  `gorm:"column:uid;not null;index"`
	FullName             string `gorm:"column:fullname;size:200;not null"`
	Username             string `gorm:"column:username;size:190;not null"`
	DeactivatedAtSeconds int64  `gorm:"column:deactivated_at_s;not null"`
	UsageDays            int64  `gorm:"column:usage_days;not null"`
}

// TableName provides the explicit table binding for GORM.
func (DeactivatedUser) TableName() string {
	return "deactivated_users"
}

// Registration is returned once by Register; the plaintext key is not stored.
type Registration struct {
	User       User
	PrivateKey string
}

// LoginResult carries the issued access token.
type LoginResult struct {
	User      User
	Token     string
	ExpiresIn int64
}
