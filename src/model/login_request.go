package model

type LoginRequest struct {
	ID       any
	Login    string
	Password string
	Agent    string
	RigID    string
}
