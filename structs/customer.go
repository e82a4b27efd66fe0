// Copyright (c) Fieldward, Inc.
// SPDX-License-Identifier: BUSL-1.1

package structs

import (
	"fmt"
	"time"

	multierror "github.com/hashicorp/go-multierror"
	"github.com/shopspring/decimal"
)

// Customer is a serviceable account holder.
type Customer struct {
	ID        string `json:"id"`
	CompanyID string `json:"companyId"`
	Name      string `json:"name"`
	Phone     string `json:"phone,omitempty"`
	Email     string `json:"email,omitempty"`

	Address        Address       `json:"address"`
	Coordinates    *Coordinates  `json:"coordinates,omitempty"`
	GeocodeStatus  GeocodeStatus `json:"geocodingStatus"`
	GeocodeRetries int           `json:"-"`

	// NoShowCount only ever increases.
	NoShowCount int  `json:"noShowCount"`
	IsActive    bool `json:"isActive"`

	CreateTime time.Time `json:"createdAt"`
	ModifyTime time.Time `json:"updatedAt"`
}

func (c *Customer) Copy() *Customer {
	if c == nil {
		return nil
	}
	nc := *c
	nc.Coordinates = c.Coordinates.Copy()
	return &nc
}

func (c *Customer) Canonicalize() {
	if c.GeocodeStatus == "" {
		c.GeocodeStatus = GeocodePending
	}
}

func (c *Customer) Validate() error {
	var mErr multierror.Error
	if c.CompanyID == "" {
		mErr.Errors = append(mErr.Errors, fmt.Errorf("missing company"))
	}
	if c.Name == "" {
		mErr.Errors = append(mErr.Errors, fmt.Errorf("missing name"))
	}
	if !c.GeocodeStatus.Valid() {
		mErr.Errors = append(mErr.Errors, fmt.Errorf("invalid geocoding status %q", c.GeocodeStatus))
	}
	return mErr.ErrorOrNil()
}

// SetAddress replaces the service address and atomically invalidates the
// stale coordinates, per the single-write rule: no reader may ever observe
// the new address with the old point.
func (c *Customer) SetAddress(addr Address) {
	c.Address = addr
	c.Coordinates = nil
	c.GeocodeStatus = GeocodePending
	c.GeocodeRetries = 0
}

// CustomerLocation is an additional service address for one customer. At
// most one location per customer is primary at rest; promotion demotes the
// previous primary in the same transaction.
type CustomerLocation struct {
	ID         string `json:"id"`
	CompanyID  string `json:"companyId"`
	CustomerID string `json:"customerId"`
	Label      string `json:"label,omitempty"`

	Address        Address       `json:"address"`
	Coordinates    *Coordinates  `json:"coordinates,omitempty"`
	GeocodeStatus  GeocodeStatus `json:"geocodingStatus"`
	GeocodeRetries int           `json:"-"`

	IsPrimary bool `json:"isPrimary"`

	CreateTime time.Time `json:"createdAt"`
	ModifyTime time.Time `json:"updatedAt"`
}

func (l *CustomerLocation) Copy() *CustomerLocation {
	if l == nil {
		return nil
	}
	nl := *l
	nl.Coordinates = l.Coordinates.Copy()
	return &nl
}

func (l *CustomerLocation) Canonicalize() {
	if l.GeocodeStatus == "" {
		l.GeocodeStatus = GeocodePending
	}
}

// EquipmentCondition is the closed set of installed-hardware conditions.
type EquipmentCondition string

const (
	ConditionExcellent EquipmentCondition = "excellent"
	ConditionGood      EquipmentCondition = "good"
	ConditionFair      EquipmentCondition = "fair"
	ConditionPoor      EquipmentCondition = "poor"
	ConditionUnknown   EquipmentCondition = "unknown"
)

func (c EquipmentCondition) Valid() bool {
	switch c {
	case ConditionExcellent, ConditionGood, ConditionFair, ConditionPoor, ConditionUnknown:
		return true
	}
	return false
}

// Equipment is installed hardware at a customer or one of its locations.
type Equipment struct {
	ID         string `json:"id"`
	CompanyID  string `json:"companyId"`
	CustomerID string `json:"customerId"`
	LocationID string `json:"locationId,omitempty"`

	Kind            string             `json:"kind"` // "furnace", "condenser", ...
	Make            string             `json:"make,omitempty"`
	Model           string             `json:"model,omitempty"`
	SerialNumber    string             `json:"serialNumber,omitempty"`
	InstallDate     *time.Time         `json:"installDate,omitempty"`
	Condition       EquipmentCondition `json:"condition"`
	RefrigerantType string             `json:"refrigerantType,omitempty"`
	IsActive        bool               `json:"isActive"`

	CreateTime time.Time `json:"createdAt"`
	ModifyTime time.Time `json:"updatedAt"`
}

func (e *Equipment) Canonicalize() {
	if e.Condition == "" {
		e.Condition = ConditionUnknown
	}
}

func (e *Equipment) Validate() error {
	var mErr multierror.Error
	if e.CompanyID == "" {
		mErr.Errors = append(mErr.Errors, fmt.Errorf("missing company"))
	}
	if e.CustomerID == "" {
		mErr.Errors = append(mErr.Errors, fmt.Errorf("missing customer"))
	}
	if !e.Condition.Valid() {
		mErr.Errors = append(mErr.Errors, fmt.Errorf("invalid condition %q", e.Condition))
	}
	return mErr.ErrorOrNil()
}

// RefrigerantLog is one append-only EPA usage entry. Corrections never
// rewrite history; they insert a new row pointing at the original through
// CorrectsLogID.
type RefrigerantLog struct {
	ID           string `json:"id"`
	CompanyID    string `json:"companyId"`
	JobID        string `json:"jobId,omitempty"`
	EquipmentID  string `json:"equipmentId"`
	TechnicianID string `json:"technicianId"`

	RefrigerantType string          `json:"refrigerantType"`
	PoundsAdded     decimal.Decimal `json:"poundsAdded"`
	PoundsRecovered decimal.Decimal `json:"poundsRecovered"`
	Notes           string          `json:"notes,omitempty"`

	CorrectsLogID string `json:"correctsLogId,omitempty"`

	CreateTime time.Time `json:"createdAt"`
}

func (r *RefrigerantLog) Validate() error {
	var mErr multierror.Error
	if r.CompanyID == "" {
		mErr.Errors = append(mErr.Errors, fmt.Errorf("missing company"))
	}
	if r.EquipmentID == "" {
		mErr.Errors = append(mErr.Errors, fmt.Errorf("missing equipment"))
	}
	if r.TechnicianID == "" {
		mErr.Errors = append(mErr.Errors, fmt.Errorf("missing technician"))
	}
	if r.RefrigerantType == "" {
		mErr.Errors = append(mErr.Errors, fmt.Errorf("missing refrigerant type"))
	}
	if r.PoundsAdded.IsNegative() || r.PoundsRecovered.IsNegative() {
		mErr.Errors = append(mErr.Errors, fmt.Errorf("refrigerant amounts cannot be negative"))
	}
	return mErr.ErrorOrNil()
}
