package models

type UserRole string

const (
	UserRoleAdmin UserRole = "admin"
	UserRoleUser  UserRole = "user"
)

func (r UserRole) Valid() bool {
	return r == UserRoleAdmin || r == UserRoleUser
}

type User struct {
	BaseModel
	Name               string   `json:"name" gorm:"type:varchar(150);not null"`
	Email              string   `json:"email" gorm:"type:varchar(255);uniqueIndex;not null"`
	PasswordHash       string   `json:"-" gorm:"type:text;not null;default:''"`
	Role               UserRole `json:"role" gorm:"type:varchar(20);not null;default:'user'"`
	Active             bool     `json:"active" gorm:"not null;default:true;index"`
	DeactivationReason *string  `json:"deactivationReason,omitempty" gorm:"type:text"`
	DriveFolderURL     *string  `json:"driveFolderUrl,omitempty" gorm:"type:text"`
	AuthProvider       *string  `json:"authProvider,omitempty" gorm:"type:varchar(30)"`

	Requests []Request `json:"-" gorm:"foreignKey:UserID"`
}

func (u *User) IsAdmin() bool {
	return u != nil && u.Role == UserRoleAdmin
}
