package scope

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/OOO-MoMo/Monitoring-System-sub000/internal/domain"
	"github.com/OOO-MoMo/Monitoring-System-sub000/internal/repository"
)

// Role 调用方角色
type Role string

const (
	RoleAdmin   Role = "ADMIN"
	RoleManager Role = "MANAGER"
	RoleUser    Role = "USER"
)

// 上游网关注入的身份头
const (
	HeaderUserID    = "X-User-ID"
	HeaderUserRole  = "X-User-Role"
	HeaderCompanyID = "X-Company-ID"
)

// Scope 调用方身份范围（认证由上游完成）
type Scope struct {
	Role      Role
	UserID    string
	CompanyID string
}

// ParseRole 解析角色，大小写不敏感
func ParseRole(s string) (Role, bool) {
	r := Role(strings.ToUpper(strings.TrimSpace(s)))
	switch r {
	case RoleAdmin, RoleManager, RoleUser:
		return r, true
	}
	return "", false
}

// FromRequest 从请求头读取 Scope；未知角色保留为空，由 Authorizer 拒绝
func FromRequest(r *http.Request) Scope {
	role, _ := ParseRole(r.Header.Get(HeaderUserRole))
	return Scope{
		Role:      role,
		UserID:    strings.TrimSpace(r.Header.Get(HeaderUserID)),
		CompanyID: strings.TrimSpace(r.Header.Get(HeaderCompanyID)),
	}
}

// Authorizer 按角色限制可读取的传感器、设备和公司
//   - ADMIN: 全部
//   - MANAGER: 本公司
//   - USER: 当前分配给自己的设备
type Authorizer struct {
	assignments repository.AssignmentRepository
}

func NewAuthorizer(assignments repository.AssignmentRepository) *Authorizer {
	return &Authorizer{assignments: assignments}
}

func (a *Authorizer) check(s Scope) error {
	switch s.Role {
	case RoleAdmin:
		return nil
	case RoleManager:
		if s.CompanyID == "" {
			return domain.Forbiddenf("manager scope has no company")
		}
		return nil
	case RoleUser:
		if s.UserID == "" {
			return domain.Forbiddenf("user scope has no user id")
		}
		return nil
	}
	return domain.Forbiddenf("unknown role %q", s.Role)
}

// AuthorizeSensor 校验是否可读取该传感器的数据
func (a *Authorizer) AuthorizeSensor(ctx context.Context, s Scope, sensor *domain.Sensor) error {
	if err := a.check(s); err != nil {
		return err
	}
	if sensor == nil {
		return domain.NotFoundf("sensor not found")
	}

	switch s.Role {
	case RoleAdmin:
		return nil
	case RoleManager:
		if sensor.CompanyID != s.CompanyID {
			return domain.Forbiddenf("sensor %s belongs to another company", sensor.ID)
		}
		return nil
	default:
		assetID := sensor.CurrentAssetID()
		if assetID == nil {
			return domain.Forbiddenf("sensor %s is not mounted on an asset", sensor.ID)
		}
		return a.assigned(ctx, s, *assetID)
	}
}

// AuthorizeAsset 校验是否可读取该设备（technic）的数据
func (a *Authorizer) AuthorizeAsset(ctx context.Context, s Scope, assetID string) error {
	if err := a.check(s); err != nil {
		return err
	}

	switch s.Role {
	case RoleAdmin:
		return nil
	case RoleManager:
		companyID, err := a.assignments.GetAssetCompany(ctx, assetID)
		if err != nil {
			return fmt.Errorf("failed to resolve company of asset %s: %w", assetID, err)
		}
		if companyID != s.CompanyID {
			return domain.Forbiddenf("asset %s belongs to another company", assetID)
		}
		return nil
	default:
		return a.assigned(ctx, s, assetID)
	}
}

// AuthorizeCompany 校验是否可读取公司级数据
// USER 只能通过分配给自己的设备读取，不开放公司级范围
func (a *Authorizer) AuthorizeCompany(_ context.Context, s Scope, companyID string) error {
	if err := a.check(s); err != nil {
		return err
	}
	switch s.Role {
	case RoleAdmin:
		return nil
	case RoleManager:
		if s.CompanyID != companyID {
			return domain.Forbiddenf("company %s is out of scope", companyID)
		}
		return nil
	default:
		return domain.Forbiddenf("user scope cannot read company %s", companyID)
	}
}

func (a *Authorizer) assigned(ctx context.Context, s Scope, assetID string) error {
	ok, err := a.assignments.IsAssignedTo(ctx, assetID, s.UserID)
	if err != nil {
		return fmt.Errorf("failed to check assignment of asset %s: %w", assetID, err)
	}
	if !ok {
		return domain.Forbiddenf("asset %s is not assigned to user %s", assetID, s.UserID)
	}
	return nil
}
