package gateway

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"flowstate/internal/auth"
	"flowstate/internal/ledger"
	"flowstate/internal/model"
)

const maxBodyBytes = 1 << 20

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type userView struct {
	ID             string    `json:"id"`
	Email          string    `json:"email"`
	CreatedAt      time.Time `json:"created_at"`
	TelegramLinked bool      `json:"telegram_linked"`
}

func viewUser(u *model.User) userView {
	return userView{ID: u.ID, Email: u.Email, CreatedAt: u.CreatedAt, TelegramLinked: u.TelegramChatID != nil}
}

// writeError maps domain errors to status codes. Unexpected errors are logged
// and reported without detail.
func writeError(c *gin.Context, err error) {
	var vErr *model.ValidationError
	switch {
	case errors.As(err, &vErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": vErr.Error()})
	case errors.Is(err, auth.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
	case errors.Is(err, auth.ErrMissingCredentials):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Email and password are required"})
	case errors.Is(err, auth.ErrInvalidCredentials):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid credentials"})
	case errors.Is(err, auth.ErrUserExists):
		c.JSON(http.StatusBadRequest, gin.H{"error": "User already exists"})
	default:
		log.Printf("[warn] %s %s: %v", c.Request.Method, c.FullPath(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}

func (h *handler) health(c *gin.Context) {
	sqlDB, err := h.DB.DB()
	if err == nil {
		err = sqlDB.PingContext(c.Request.Context())
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "database": "disconnected"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "database": "connected"})
}

func (h *handler) signUp(c *gin.Context) {
	h.authenticate(c, h.Auth.SignUp)
}

func (h *handler) signIn(c *gin.Context) {
	h.authenticate(c, h.Auth.SignIn)
}

func (h *handler) authenticate(c *gin.Context, do func(ctx context.Context, email, password string) (*model.User, auth.Session, error)) {
	var req credentials
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Email and password are required"})
		return
	}
	user, session, err := do(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{"user": viewUser(user), "session": session}})
}

// signOut revokes the presented token. Signing out without a usable token still succeeds.
func (h *handler) signOut(c *gin.Context) {
	if token := bearerToken(c); token != "" {
		if err := h.Auth.SignOut(c.Request.Context(), token); err != nil && !errors.Is(err, auth.ErrUnauthorized) {
			writeError(c, err)
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"message": "Signed out successfully"})
}

func (h *handler) currentUser(c *gin.Context) {
	user, err := h.Auth.User(c.Request.Context(), identity(c))
	if err != nil {
		if errors.Is(err, auth.ErrUnauthorized) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "User not found"})
			return
		}
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": viewUser(user)})
}

func (h *handler) telegramCode(c *gin.Context) {
	code, expires, err := h.Auth.IssueLinkCode(identity(c).UserID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": code, "command": "/start " + code, "expires_at": expires.Unix()})
}

func (h *handler) listRows(c *gin.Context) {
	table, err := h.Tables.Lookup(c.Param("table"))
	if err != nil {
		writeError(c, err)
		return
	}
	rows, err := table.ListRows(c.Request.Context(), identity(c).UserID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": rows})
}

func (h *handler) createRow(c *gin.Context) {
	table, err := h.Tables.Lookup(c.Param("table"))
	if err != nil {
		writeError(c, err)
		return
	}
	body, err := readBody(c)
	if err != nil {
		writeError(c, err)
		return
	}
	row, err := table.CreateRow(c.Request.Context(), identity(c).UserID, body)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": row})
}

func (h *handler) updateRow(c *gin.Context) {
	table, err := h.Tables.Lookup(c.Param("table"))
	if err != nil {
		writeError(c, err)
		return
	}
	body, err := readBody(c)
	if err != nil {
		writeError(c, err)
		return
	}
	rows, err := table.UpdateRow(c.Request.Context(), identity(c).UserID, c.Param("id"), body)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": rows})
}

// deleteRow acknowledges whether or not a row matched, so callers cannot probe for ids.
func (h *handler) deleteRow(c *gin.Context) {
	table, err := h.Tables.Lookup(c.Param("table"))
	if err != nil {
		writeError(c, err)
		return
	}
	if _, err := table.DeleteRow(c.Request.Context(), identity(c).UserID, c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Deleted successfully"})
}

func readBody(c *gin.Context) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes))
	if err != nil {
		return nil, &model.ValidationError{Message: "request body too large or unreadable"}
	}
	return body, nil
}

func (h *handler) financeReport(c *gin.Context) {
	month := h.Now()
	if raw := c.Query("month"); raw != "" {
		parsed, err := time.ParseInLocation(ledger.MonthLayout, raw, month.Location())
		if err != nil {
			writeError(c, &model.ValidationError{Field: "month", Message: "expected YYYY-MM"})
			return
		}
		month = parsed
	}
	summary, err := h.Finance.Summary(c.Request.Context(), identity(c).UserID, month)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": summary})
}

func (h *handler) digestReport(c *gin.Context) {
	digest, err := h.Digest.Build(c.Request.Context(), identity(c).UserID, h.Now())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": digest, "text": digest.Render(false)})
}
