package pii

// Field names the person and patient attributes whose storage treatment is
// decided by policy rather than hard-coded in the repositories.
type Field string

const (
	FieldDocumentNumber    Field = "document_number"
	FieldGivenNames        Field = "given_names"
	FieldFamilyNames       Field = "family_names"
	FieldBirthDate         Field = "birth_date"
	FieldPhone             Field = "phone"
	FieldEmail             Field = "email"
	FieldAddress           Field = "address"
	FieldEmergencyName     Field = "emergency_contact_name"
	FieldEmergencyPhone    Field = "emergency_contact_phone"
	FieldPolicyNumber      Field = "insurance_policy_number"
	FieldAllergies         Field = "allergies"
	FieldChronicConditions Field = "chronic_conditions"
)

// FieldPolicy declares which fields are encrypted at rest. The historical
// record kept allergies and chronic conditions in plaintext while encrypting
// contact and policy data; that split is preserved as the default but can be
// changed here without touching any repository code.
type FieldPolicy struct {
	encrypted map[Field]bool
}

// DefaultFieldPolicy returns the policy matching the historical field split.
func DefaultFieldPolicy() *FieldPolicy {
	return NewFieldPolicy(
		FieldDocumentNumber,
		FieldGivenNames,
		FieldFamilyNames,
		FieldBirthDate,
		FieldPhone,
		FieldEmail,
		FieldAddress,
		FieldEmergencyName,
		FieldEmergencyPhone,
		FieldPolicyNumber,
	)
}

// NewFieldPolicy builds a policy that encrypts exactly the given fields.
func NewFieldPolicy(encrypted ...Field) *FieldPolicy {
	m := make(map[Field]bool, len(encrypted))
	for _, f := range encrypted {
		m[f] = true
	}
	return &FieldPolicy{encrypted: m}
}

// Encrypted reports whether the field is stored encrypted.
func (p *FieldPolicy) Encrypted(f Field) bool {
	return p != nil && p.encrypted[f]
}
