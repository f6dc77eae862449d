package engine

import (
	"context"
	"fmt"
	"net/mail"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/atelier-north/studio-ops/internal/model"
	"github.com/atelier-north/studio-ops/internal/store"
)

// NewContactHandler creates contact rows from new_contact suggestions.
type NewContactHandler struct{}

func (NewContactHandler) Type() string     { return model.TypeNewContact }
func (NewContactHandler) Actionable() bool { return true }

func (NewContactHandler) Validate(ctx context.Context, tx store.Tx, _ *model.Suggestion, data model.SuggestedData) []string {
	var errs []string
	if data.Name == "" {
		errs = append(errs, "contact name is required")
	}
	if data.Email == "" {
		errs = append(errs, "contact email is required")
	} else if _, err := mail.ParseAddress(data.Email); err != nil {
		errs = append(errs, fmt.Sprintf("invalid email address %q", data.Email))
	} else {
		existing, err := tx.GetContactByEmail(ctx, data.Email)
		if err != nil {
			errs = append(errs, "could not check for duplicate email: "+err.Error())
		} else if existing != nil {
			errs = append(errs, fmt.Sprintf("a contact with email %s already exists", data.Email))
		}
	}
	return errs
}

func (NewContactHandler) Preview(ctx context.Context, tx store.Tx, _ *model.Suggestion, data model.SuggestedData) (*model.ChangePreview, error) {
	changes := []model.FieldChange{
		{Field: "name", New: data.Name},
		{Field: "email", New: data.Email},
	}
	for _, fc := range []model.FieldChange{
		{Field: "phone", New: data.Phone},
		{Field: "company", New: data.Company},
		{Field: "role", New: data.Role},
	} {
		if fc.New != "" {
			changes = append(changes, fc)
		}
	}
	return &model.ChangePreview{
		TargetTable: "contacts",
		Action:      model.ActionInsert,
		Summary:     fmt.Sprintf("Create contact %s <%s>", data.Name, data.Email),
		Changes:     changes,
	}, nil
}

func (NewContactHandler) Apply(ctx context.Context, tx store.Tx, sug *model.Suggestion, data model.SuggestedData) (*model.SuggestionResult, error) {
	// Duplicate check re-run under the apply transaction; the earlier
	// validate result is stale the moment another reviewer commits.
	existing, err := tx.GetContactByEmail(ctx, data.Email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, eris.Errorf("contact with email %s already exists", data.Email)
	}

	c := &model.Contact{
		Name:    data.Name,
		Email:   data.Email,
		Phone:   data.Phone,
		Company: data.Company,
		Role:    data.Role,
	}
	if err := tx.CreateContact(ctx, c); err != nil {
		return nil, err
	}
	if err := recordChange(ctx, tx, sug.ID, "contacts", c.ID, "", "", c.Email, model.ActionInsert); err != nil {
		return nil, err
	}
	return &model.SuggestionResult{
		Success: true,
		Message: fmt.Sprintf("created contact %s", c.Name),
		Changes: []model.ChangeRecord{{Table: "contacts", RecordID: c.ID, Kind: model.ActionInsert}},
		RollbackData: map[string]any{
			"table":     "contacts",
			"record_id": c.ID,
		},
	}, nil
}

func (NewContactHandler) Rollback(ctx context.Context, tx store.Tx, rollback map[string]any) (bool, error) {
	id := rbString(rollback, "record_id")
	if id == "" {
		return false, eris.New("rollback data missing record_id")
	}
	if err := tx.DeleteContact(ctx, id); err != nil {
		return false, err
	}
	return true, nil
}

// UpdateContactHandler applies field updates to an existing contact.
// Target resolution: exact name, case-insensitive name, exact email,
// fuzzy substring, in that order.
type UpdateContactHandler struct{}

func (UpdateContactHandler) Type() string     { return model.TypeUpdateContact }
func (UpdateContactHandler) Actionable() bool { return true }

func resolveContact(ctx context.Context, tx store.Tx, data model.SuggestedData) (*model.Contact, error) {
	if data.ContactName != "" {
		if c, err := tx.GetContactByName(ctx, data.ContactName, false); err != nil || c != nil {
			return c, err
		}
		if c, err := tx.GetContactByName(ctx, data.ContactName, true); err != nil || c != nil {
			return c, err
		}
	}
	if data.Email != "" {
		if c, err := tx.GetContactByEmail(ctx, data.Email); err != nil || c != nil {
			return c, err
		}
	}
	if data.ContactName != "" {
		matches, err := tx.SearchContactsByName(ctx, data.ContactName)
		if err != nil {
			return nil, err
		}
		if len(matches) == 1 {
			return &matches[0], nil
		}
	}
	return nil, nil
}

func (UpdateContactHandler) Validate(ctx context.Context, tx store.Tx, _ *model.Suggestion, data model.SuggestedData) []string {
	var errs []string
	if data.ContactName == "" && data.Email == "" {
		errs = append(errs, "contact name or email is required to resolve the target")
	}
	if len(data.Updates) == 0 {
		errs = append(errs, "no field updates supplied")
	}
	if len(errs) > 0 {
		return errs
	}

	target, err := resolveContact(ctx, tx, data)
	if err != nil {
		return []string{"could not resolve contact: " + err.Error()}
	}
	if target == nil {
		return []string{fmt.Sprintf("no contact matches %q", data.ContactName)}
	}
	if newEmail, ok := data.Updates["email"]; ok && !strings.EqualFold(newEmail, target.Email) {
		other, err := tx.GetContactByEmail(ctx, newEmail)
		if err != nil {
			return []string{"could not check email collision: " + err.Error()}
		}
		if other != nil && other.ID != target.ID {
			errs = append(errs, fmt.Sprintf("email %s is already used by another contact", newEmail))
		}
	}
	return errs
}

func contactField(c *model.Contact, col string) string {
	switch col {
	case "name":
		return c.Name
	case "email":
		return c.Email
	case "phone":
		return c.Phone
	case "company":
		return c.Company
	case "role":
		return c.Role
	}
	return ""
}

func (UpdateContactHandler) Preview(ctx context.Context, tx store.Tx, _ *model.Suggestion, data model.SuggestedData) (*model.ChangePreview, error) {
	target, err := resolveContact(ctx, tx, data)
	if err != nil {
		return nil, err
	}
	if target == nil {
		return nil, eris.Errorf("no contact matches %q", data.ContactName)
	}
	var changes []model.FieldChange
	for field, newV := range data.Updates {
		changes = append(changes, model.FieldChange{Field: field, Old: contactField(target, field), New: newV})
	}
	return &model.ChangePreview{
		TargetTable: "contacts",
		Action:      model.ActionUpdate,
		Summary:     fmt.Sprintf("Update contact %s (%d fields)", target.Name, len(changes)),
		Changes:     changes,
	}, nil
}

func (UpdateContactHandler) Apply(ctx context.Context, tx store.Tx, sug *model.Suggestion, data model.SuggestedData) (*model.SuggestionResult, error) {
	target, err := resolveContact(ctx, tx, data)
	if err != nil {
		return nil, err
	}
	if target == nil {
		return nil, eris.Errorf("no contact matches %q", data.ContactName)
	}

	prior := make(map[string]any, len(data.Updates))
	for field := range data.Updates {
		prior[field] = contactField(target, field)
	}
	if err := tx.UpdateContactFields(ctx, target.ID, data.Updates); err != nil {
		return nil, err
	}
	for field, newV := range data.Updates {
		oldV, _ := prior[field].(string)
		if err := recordChange(ctx, tx, sug.ID, "contacts", target.ID, field, oldV, newV, model.ActionUpdate); err != nil {
			return nil, err
		}
	}
	return &model.SuggestionResult{
		Success: true,
		Message: fmt.Sprintf("updated contact %s", target.Name),
		Changes: []model.ChangeRecord{{Table: "contacts", RecordID: target.ID, Kind: model.ActionUpdate}},
		RollbackData: map[string]any{
			"table":     "contacts",
			"record_id": target.ID,
			"fields":    prior,
		},
	}, nil
}

func (UpdateContactHandler) Rollback(ctx context.Context, tx store.Tx, rollback map[string]any) (bool, error) {
	id := rbString(rollback, "record_id")
	fields, _ := rollback["fields"].(map[string]any)
	if id == "" || len(fields) == 0 {
		return false, eris.New("rollback data missing record_id or fields")
	}
	restore := make(map[string]string, len(fields))
	for field, v := range fields {
		s, _ := v.(string)
		restore[field] = s
	}
	if err := tx.UpdateContactFields(ctx, id, restore); err != nil {
		return false, err
	}
	return true, nil
}
