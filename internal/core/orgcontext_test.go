package core

import (
	"testing"

	"github.com/google/uuid"
)

func testSnapshot() *EntitySnapshot {
	entityID := uuid.New()
	return &EntitySnapshot{
		Entity: Entity{ID: entityID, Name: "Acme", ContractType: ContractTypeCorporate},
		Users: []User{
			{ID: uuid.New(), EntityID: entityID, LastName: "Петров", FirstName: "Иван", MiddleName: "Сергеевич"},
		},
		Departments: []Department{
			{ID: uuid.New(), EntityID: entityID, Name: "Sales"},
		},
		Groups: []Group{
			{ID: uuid.New(), EntityID: entityID, Name: "Top Managers"},
		},
	}
}

func TestNameKey(t *testing.T) {
	tests := []struct {
		a, b string
		same bool
	}{
		{"Sales", " sales ", true},
		{"Top Managers", "topmanagers", true},
		{"Отдел Кадров", "отдел\tкадров", true},
		{"Sales", "Sale", false},
	}

	for _, tt := range tests {
		if got := nameKey(tt.a) == nameKey(tt.b); got != tt.same {
			t.Errorf("nameKey(%q) == nameKey(%q) = %v, want %v", tt.a, tt.b, got, tt.same)
		}
	}
}

func TestOrganizationContext_Find(t *testing.T) {
	snap := testSnapshot()
	c := NewOrganizationContext(snap)

	if d := c.FindDepartmentByName(" SALES "); d == nil || d.ID != snap.Departments[0].ID {
		t.Errorf("FindDepartmentByName() = %v, want Sales", d)
	}
	if d := c.FindDepartmentByName(""); d != nil {
		t.Errorf("FindDepartmentByName(\"\") = %v, want nil", d)
	}
	if g := c.FindGroupByName("top managers"); g == nil || g.ID != snap.Groups[0].ID {
		t.Errorf("FindGroupByName() = %v, want Top Managers", g)
	}
	if g := c.FindGroupByName("Nobody"); g != nil {
		t.Errorf("FindGroupByName() = %v, want nil", g)
	}
	if u := c.FindUserByFullName("петров иван  сергеевич"); u == nil {
		t.Error("FindUserByFullName() = nil, want Петров")
	}
	if u := c.FindUserByFullName("Петров Иван"); u != nil {
		t.Errorf("FindUserByFullName() = %v, want nil for partial name", u)
	}
}

func TestOrganizationContext_RegisterCreatedDepartment(t *testing.T) {
	c := NewOrganizationContext(testSnapshot())

	if c.FindDepartmentByName("HR") != nil {
		t.Fatal("HR found before registration")
	}

	hr := &Department{Name: "HR"}
	c.RegisterCreatedDepartment(hr)

	if got := c.FindDepartmentByName(" hr "); got != hr {
		t.Errorf("FindDepartmentByName() = %p, want the registered department %p", got, hr)
	}
	if len(c.CreatedDepartments()) != 1 {
		t.Errorf("CreatedDepartments() len = %d, want 1", len(c.CreatedDepartments()))
	}
}

func TestDuplicateMatcher_Resolve(t *testing.T) {
	snap := testSnapshot()
	m := NewDuplicateMatcher()

	tests := []struct {
		name        string
		user        User
		dept, group string
		check       func(t *testing.T, r Resolution)
	}{
		{
			name: "existing department and group",
			user: User{LastName: "Новиков", FirstName: "Олег"},
			dept: "sales", group: "Top Managers",
			check: func(t *testing.T, r Resolution) {
				if !r.DepartmentSpecified || r.FoundDepartment == nil || r.NewDepartment != nil {
					t.Errorf("department resolution = %+v", r)
				}
				if !r.GroupSpecified || r.FoundGroup == nil || len(r.Errors) != 0 {
					t.Errorf("group resolution = %+v", r)
				}
			},
		},
		{
			name: "new department",
			user: User{LastName: "Новиков", FirstName: "Олег"},
			dept: " HR ",
			check: func(t *testing.T, r Resolution) {
				if r.NewDepartment == nil || r.NewDepartment.Name != "HR" || r.NewDepartment.EntityID != snap.Entity.ID {
					t.Errorf("NewDepartment = %+v, want HR of the entity", r.NewDepartment)
				}
				if r.GroupSpecified {
					t.Error("GroupSpecified = true for blank group")
				}
			},
		},
		{
			name:  "unknown group",
			user:  User{LastName: "Новиков", FirstName: "Олег"},
			group: "Ghosts",
			check: func(t *testing.T, r Resolution) {
				if r.FoundGroup != nil || len(r.Errors) != 1 || r.Errors[0].Name != ErrNameGroupNotFound {
					t.Errorf("Errors = %+v, want one GroupNotFound", r.Errors)
				}
			},
		},
		{
			name: "duplicate user",
			user: User{LastName: "ПЕТРОВ", FirstName: "иван", MiddleName: "Сергеевич"},
			check: func(t *testing.T, r Resolution) {
				if r.DuplicatingUser == nil {
					t.Error("DuplicatingUser = nil, want existing user")
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewOrganizationContext(snap)
			tt.check(t, m.Resolve(c, &tt.user, tt.dept, tt.group))
		})
	}
}
