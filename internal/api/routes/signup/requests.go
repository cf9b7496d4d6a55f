package signup

type SignupRequest struct {
	InviteCode string `json:"invite_code" validate:"required"`
	Email      string `json:"email" validate:"required,email"`
	FirstName  string `json:"first_name" validate:"required"`
	LastName   string `json:"last_name" validate:"required"`
	Password   string `json:"password" validate:"required"`
}

type SignupResponse struct {
	UserID string `json:"user_id"`
}
