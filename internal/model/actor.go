package model

import "fmt"

// ActorKind различает источники запроса.
type ActorKind int

const (
	ActorUser ActorKind = iota + 1
	ActorAdmin
	ActorProvider
)

func (k ActorKind) String() string {
	switch k {
	case ActorUser:
		return "user"
	case ActorAdmin:
		return "admin"
	case ActorProvider:
		return "provider"
	default:
		return fmt.Sprintf("ActorKind(%d)", int(k))
	}
}

// Actor — аутентифицированный инициатор операции.
// ID указывает на пользователя для ActorUser и ActorAdmin и на провайдера для ActorProvider.
type Actor struct {
	Kind ActorKind
	ID   int64
}

// UserActor строит инициатора по роли пользователя.
func UserActor(id int64, role Role) Actor {
	if role == RoleAdmin {
		return Actor{Kind: ActorAdmin, ID: id}
	}
	return Actor{Kind: ActorUser, ID: id}
}

// ProviderActor строит инициатора-провайдера.
func ProviderActor(id int64) Actor {
	return Actor{Kind: ActorProvider, ID: id}
}

// IsAdmin сообщает, обладает ли инициатор правами администратора.
func (a Actor) IsAdmin() bool {
	return a.Kind == ActorAdmin
}

func (a Actor) String() string {
	return fmt.Sprintf("%s %d", a.Kind, a.ID)
}
