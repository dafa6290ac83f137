package clinicapi

// Option is one selectable value with its display label.
type Option struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// FieldOptions maps a procedure field to its ordered option list.
type FieldOptions map[string][]Option

// DefaultFieldOptions returns the built-in option lists. They stand in for
// any field the backend leaves absent or empty, so selects never render
// blank.
func DefaultFieldOptions() FieldOptions {
	return FieldOptions{
		"status": {
			{Value: "confirmed", Label: "Confirmed"},
			{Value: "reserved", Label: "Reserved"},
			{Value: "cancelled", Label: "Cancelled"},
			{Value: "done", Label: "Done"},
		},
		"procedure_type": {
			{Value: "hair_transplant", Label: "Hair Transplant"},
			{Value: "beard", Label: "Beard Transplant"},
			{Value: "woman", Label: "Woman Transplant"},
			{Value: "eyebrow", Label: "Eyebrow Transplant"},
			{Value: "face_to_face_consultation", Label: "Face to Face Consultation"},
			{Value: "video_consultation", Label: "Video Consultation"},
		},
		"package_type": {
			{Value: "na", Label: "N/A"},
			{Value: "small", Label: "Small"},
			{Value: "big", Label: "Big"},
		},
		"agency": {
			{Value: "want_hair", Label: "Want Hair"},
			{Value: "liv_hair", Label: "Liv Hair"},
		},
		"forms": {
			{Value: "form_1", Label: "Form 1"},
			{Value: "form_2", Label: "Form 2"},
			{Value: "form_3", Label: "Form 3"},
			{Value: "form_4", Label: "Form 4"},
			{Value: "form_5", Label: "Form 5"},
		},
		"consents": {
			{Value: "consent_1", Label: "Consent 1"},
			{Value: "consent_2", Label: "Consent 2"},
			{Value: "consent_3", Label: "Consent 3"},
		},
		"consultation": {
			{Value: "consultation_1", Label: "Consultation 1"},
			{Value: "consultation_2", Label: "Consultation 2"},
		},
		"payment": {
			{Value: "waiting", Label: "Waiting"},
			{Value: "paid", Label: "Paid"},
			{Value: "partially_paid", Label: "Partially Paid"},
		},
	}
}

// MergeWithDefaults overlays resp on the defaults per field: a field present
// with at least one option keeps the server's list and order, everything
// else falls back to the default list.
func MergeWithDefaults(resp FieldOptions) FieldOptions {
	merged := DefaultFieldOptions()
	for field, options := range resp {
		if len(options) > 0 {
			merged[field] = options
		}
	}
	return merged
}
