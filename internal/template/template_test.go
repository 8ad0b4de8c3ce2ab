package template

import "testing"

func TestFill(t *testing.T) {
	testCases := []struct {
		name     string
		template string
		vars     map[string]string
		expected string
	}{
		{
			name:     "all variables",
			template: "Hi {name}, your {carModel} is ready",
			vars:     map[string]string{"name": "Иван", "carModel": "Lada Vesta 2021"},
			expected: "Hi Иван, your Lada Vesta 2021 is ready",
		},
		{
			name:     "repeated placeholder",
			template: "{name}! {name}!",
			vars:     map[string]string{"name": "Olga"},
			expected: "Olga! Olga!",
		},
		{
			name:     "unknown placeholder kept",
			template: "Welcome to {organizationName}",
			vars:     map[string]string{"name": "Olga"},
			expected: "Welcome to {organizationName}",
		},
		{
			name:     "value containing a placeholder",
			template: "Hi {name}, your {carModel} is ready",
			vars:     map[string]string{"name": "{carModel}", "carModel": "автомобиль"},
			expected: "Hi {carModel}, your автомобиль is ready",
		},
		{
			name:     "no variables",
			template: "plain text",
			vars:     nil,
			expected: "plain text",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Fill(tc.template, tc.vars); got != tc.expected {
				t.Fatalf("expected %q, got %q", tc.expected, got)
			}
		})
	}
}

func TestPlaceholders(t *testing.T) {
	got := Placeholders("Hi {name}, {carModel} at {organizationName}")
	if len(got) != 3 || got[0] != "{name}" || got[2] != "{organizationName}" {
		t.Fatalf("unexpected placeholders: %v", got)
	}
}

func TestValidate(t *testing.T) {
	if err := Validate("Hi {name}"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := Validate("Hi {name"); err == nil {
		t.Fatal("expected error for unbalanced braces")
	}
	if err := Validate("  "); err == nil {
		t.Fatal("expected error for empty template")
	}
}

func TestFillIsDeterministic(t *testing.T) {
	vars := map[string]string{"name": "{carModel}", "carModel": "автомобиль", "organizationName": "{name}"}
	for i := 0; i < 200; i++ {
		if got := Fill("Hi {name} from {organizationName}", vars); got != "Hi {carModel} from {name}" {
			t.Fatalf("run %d: unexpected output %q", i, got)
		}
	}
}
