package admin

import (
	"errors"
	"strings"

	"github.com/Myenum2412/app.client.proultima-sub003/internal/models"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type StaffResponse struct {
	ID        uint            `json:"id"`
	Name      string          `json:"name"`
	Email     string          `json:"email"`
	Role      models.UserRole `json:"role"`
	Branch    string          `json:"branch"`
	IsActive  bool            `json:"is_active"`
	CreatedAt string          `json:"created_at"`
}

type CreateStaffRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
	Branch   string `json:"branch"`
	IsActive *bool  `json:"is_active"`
}

type UpdateStaffRequest struct {
	Name     *string `json:"name"`
	Role     *string `json:"role"`
	Branch   *string `json:"branch"`
	IsActive *bool   `json:"is_active"`
	Password *string `json:"password"`
}

func toStaffResponse(u models.User) StaffResponse {
	return StaffResponse{
		ID:        u.ID,
		Name:      u.Name,
		Email:     u.Email,
		Role:      u.Role,
		Branch:    u.Branch,
		IsActive:  u.IsActive,
		CreatedAt: u.CreatedAt.Format("2006-01-02 15:04:05"),
	}
}

func parseRole(s string) (models.UserRole, bool) {
	role := models.UserRole(strings.ToLower(strings.TrimSpace(s)))
	return role, role.Valid()
}

// ----------------------------------------
// POST /api/admin/staff
// ----------------------------------------
func CreateStaffHandler(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body CreateStaffRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}

		body.Email = strings.ToLower(strings.TrimSpace(body.Email))
		body.Name = strings.TrimSpace(body.Name)
		if body.Name == "" || body.Email == "" || body.Password == "" {
			return fiber.NewError(fiber.StatusBadRequest, "name, email and password are required")
		}
		if len(body.Password) < 8 {
			return fiber.NewError(fiber.StatusBadRequest, "password must be at least 8 characters")
		}
		role, ok := parseRole(body.Role)
		if !ok {
			return fiber.NewError(fiber.StatusBadRequest, "role must be admin, accountant or staff")
		}

		var count int64
		if err := db.Model(&models.User{}).Where("email = ?", body.Email).Count(&count).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "could not check email")
		}
		if count > 0 {
			return fiber.NewError(fiber.StatusConflict, "email is already registered")
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(body.Password), bcrypt.DefaultCost)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "could not hash password")
		}

		user := models.User{
			Name:         body.Name,
			Email:        body.Email,
			PasswordHash: string(hash),
			Role:         role,
			Branch:       strings.TrimSpace(body.Branch),
			IsActive:     true,
		}
		if err := db.Create(&user).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return fiber.NewError(fiber.StatusConflict, "email is already registered")
			}
			return fiber.NewError(fiber.StatusInternalServerError, "could not create staff member")
		}
		// gorm skips the false zero value on insert
		if body.IsActive != nil && !*body.IsActive {
			if err := db.Model(&user).Update("is_active", false).Error; err != nil {
				return fiber.NewError(fiber.StatusInternalServerError, "could not deactivate staff member")
			}
			user.IsActive = false
		}

		return c.Status(fiber.StatusCreated).JSON(toStaffResponse(user))
	}
}

// ----------------------------------------
// GET /api/admin/staff?branch=&role=&active=
// ----------------------------------------
func ListStaffHandler(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		q := db.Model(&models.User{})
		if branch := models.BranchKey(c.Query("branch")); branch != "" {
			q = q.Where("LOWER(branch) = ?", branch)
		}
		if r := c.Query("role"); r != "" {
			role, ok := parseRole(r)
			if !ok {
				return fiber.NewError(fiber.StatusBadRequest, "role must be admin, accountant or staff")
			}
			q = q.Where("LOWER(role) = ?", string(role))
		}
		if a := c.Query("active"); a != "" {
			q = q.Where("is_active = ?", c.QueryBool("active"))
		}

		var users []models.User
		if err := q.Order("name ASC").Find(&users).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "could not list staff")
		}

		res := make([]StaffResponse, 0, len(users))
		for _, u := range users {
			res = append(res, toStaffResponse(u))
		}
		return c.JSON(res)
	}
}

// ----------------------------------------
// PUT /api/admin/staff/:id
// ----------------------------------------
func UpdateStaffHandler(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := c.ParamsInt("id")
		if err != nil || id <= 0 {
			return fiber.NewError(fiber.StatusBadRequest, "invalid staff id")
		}

		var user models.User
		if err := db.First(&user, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fiber.NewError(fiber.StatusNotFound, "staff member not found")
			}
			return fiber.NewError(fiber.StatusInternalServerError, "could not load staff member")
		}

		var body UpdateStaffRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}

		updates := map[string]any{}
		if body.Name != nil {
			name := strings.TrimSpace(*body.Name)
			if name == "" {
				return fiber.NewError(fiber.StatusBadRequest, "name must not be empty")
			}
			updates["name"] = name
		}
		if body.Role != nil {
			role, ok := parseRole(*body.Role)
			if !ok {
				return fiber.NewError(fiber.StatusBadRequest, "role must be admin, accountant or staff")
			}
			updates["role"] = role
		}
		if body.Branch != nil {
			updates["branch"] = strings.TrimSpace(*body.Branch)
		}
		if body.IsActive != nil {
			updates["is_active"] = *body.IsActive
		}
		if body.Password != nil {
			if len(*body.Password) < 8 {
				return fiber.NewError(fiber.StatusBadRequest, "password must be at least 8 characters")
			}
			hash, err := bcrypt.GenerateFromPassword([]byte(*body.Password), bcrypt.DefaultCost)
			if err != nil {
				return fiber.NewError(fiber.StatusInternalServerError, "could not hash password")
			}
			updates["password_hash"] = string(hash)
		}

		if len(updates) > 0 {
			if err := db.Model(&user).Updates(updates).Error; err != nil {
				return fiber.NewError(fiber.StatusInternalServerError, "could not update staff member")
			}
			if err := db.First(&user, id).Error; err != nil {
				return fiber.NewError(fiber.StatusInternalServerError, "could not reload staff member")
			}
		}

		return c.JSON(toStaffResponse(user))
	}
}
