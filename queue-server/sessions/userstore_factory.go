package sessions

import (
	"github.com/gin-gonic/gin"
	"github.com/gorilla/sessions"
)

// UserStoreFactory is a function that creates a UserStore for a given request context.
type UserStoreFactory func(c *gin.Context) UserStore

// NewUserStoreFactory creates a new UserStoreFactory.
func NewUserStoreFactory(store sessions.Store) UserStoreFactory {
	return func(c *gin.Context) UserStore {
		return NewGorillaUserStore(store, c)
	}
}
