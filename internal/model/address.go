package model

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Address 地址（值对象）
type Address struct {
	Name       string `json:"name"`
	Street1    string `json:"street1" validate:"required"`
	Street2    string `json:"street2"`
	City       string `json:"city" validate:"required"`
	State      string `json:"state" validate:"required_if=Country US"`
	PostalCode string `json:"postal_code" validate:"required"`
	Country    string `json:"country" validate:"required"`
	Phone      string `json:"phone"`
	Email      string `json:"email"`
}

var addressValidator = validator.New()

// Normalize 去除首尾空白，国家代码转大写
func (a Address) Normalize() Address {
	a.Name = strings.TrimSpace(a.Name)
	a.Street1 = strings.TrimSpace(a.Street1)
	a.Street2 = strings.TrimSpace(a.Street2)
	a.City = strings.TrimSpace(a.City)
	a.State = strings.TrimSpace(a.State)
	a.PostalCode = strings.TrimSpace(a.PostalCode)
	a.Country = strings.ToUpper(strings.TrimSpace(a.Country))
	a.Phone = strings.TrimSpace(a.Phone)
	a.Email = strings.TrimSpace(a.Email)
	return a
}

// Validate 校验收货地址：街道、城市、邮编、国家必填，美国地址必须有州
// 其余字段不影响报价
func (a Address) Validate() error {
	return addressValidator.Struct(a.Normalize())
}

// ValidateStrict 在 Validate 基础上要求 ISO-3166 两位国家码与合法邮箱，用于服务商地址校验
func (a Address) ValidateStrict() error {
	a = a.Normalize()
	if err := addressValidator.Struct(a); err != nil {
		return err
	}
	if err := addressValidator.Var(a.Country, "iso3166_1_alpha2"); err != nil {
		return fmt.Errorf("country %q is not an ISO-3166 alpha-2 code", a.Country)
	}
	if err := addressValidator.Var(a.Email, "omitempty,email"); err != nil {
		return fmt.Errorf("email %q is invalid", a.Email)
	}
	return nil
}

// IsComplete 地址是否满足报价要求
func (a Address) IsComplete() bool {
	return a.Validate() == nil
}

// MissingFields 返回校验失败的字段名（json 名）
func (a Address) MissingFields() []string {
	err := a.Validate()
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return []string{err.Error()}
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, jsonFieldName(fe.StructField()))
	}
	return fields
}

func jsonFieldName(field string) string {
	switch field {
	case "PostalCode":
		return "postal_code"
	default:
		return strings.ToLower(field)
	}
}
