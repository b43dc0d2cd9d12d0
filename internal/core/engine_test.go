package core_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/JonMunkholm/staffimport/internal/core"
	"github.com/JonMunkholm/staffimport/internal/storage/memory"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	repo   *memory.Repository
	entity core.Entity
	it     core.Department
	group  core.Group
	engine *core.Engine
}

func newFixture(t *testing.T, contractType string, opts ...core.EngineOption) *fixture {
	t.Helper()
	repo := memory.New()
	e := repo.AddEntity(core.Entity{Name: "Acme", ContractType: contractType})
	f := &fixture{
		repo:   repo,
		entity: e,
		it:     repo.AddDepartment(e.ID, "IT"),
		group:  repo.AddGroup(e.ID, "Travel"),
	}
	repo.AddUser(core.User{EntityID: e.ID, LastName: "Петров", FirstName: "Иван", Email: "petrov@acme.test"})
	f.engine = core.NewEngine(repo, opts...)
	return f
}

func (f *fixture) run(t *testing.T, rows []core.RawRow, save bool, selected []int) *core.BatchResult {
	t.Helper()
	res, err := f.engine.Run(context.Background(), rows, core.RunOptions{
		EntityID: f.entity.ID,
		Actor:    "admin@acme.test",
		Save:     save,
		Selected: selected,
	})
	require.NoError(t, err)
	return res
}

func row(last, first string, extra ...string) core.RawRow {
	r := core.RawRow{core.ColLastName: last, core.ColFirstName: first}
	for i := 0; i+1 < len(extra); i += 2 {
		r[extra[i]] = extra[i+1]
	}
	return r
}

func errorNames(rr core.RecordResult) []string {
	names := make([]string, 0, len(rr.Errors))
	for _, e := range rr.Errors {
		names = append(names, e.Name)
	}
	return names
}

func assertFailedNumber(t *testing.T, res *core.BatchResult) {
	t.Helper()
	failed := 0
	for _, rr := range res.RecordResults {
		if rr.CreatedUser == nil {
			failed++
		}
	}
	assert.Equal(t, failed, res.FailedNumber)
}

func TestEngine_DepartmentCreatedOnceAcrossRows(t *testing.T) {
	f := newFixture(t, core.ContractTypeCorporate)
	rows := []core.RawRow{
		row("Сидоров", "Пётр", core.ColDepartment, "HR", core.ColEmail, "sidorov@acme.test"),
		row("Кузнецова", "Анна", core.ColDepartment, " hr ", core.ColEmail, "kuznetsova@acme.test"),
	}

	res := f.run(t, rows, true, []int{0, 1})

	require.Len(t, res.RecordResults, 2)
	assert.Zero(t, res.FailedNumber)

	first, second := res.RecordResults[0], res.RecordResults[1]
	require.NotNil(t, first.CreatedDepartment)
	assert.Nil(t, second.CreatedDepartment)
	assert.Same(t, first.CreatedDepartment, second.FoundDepartment)

	depts := f.repo.Departments(f.entity.ID)
	require.Len(t, depts, 2, "IT plus exactly one HR")

	hrID := first.CreatedDepartment.ID
	require.NotEqual(t, uuid.Nil, hrID)
	for _, u := range f.repo.Users(f.entity.ID) {
		if u.LastName == "Петров" {
			continue
		}
		require.NotNil(t, u.DepartmentID, u.LastName)
		assert.Equal(t, hrID, *u.DepartmentID, u.LastName)
	}
}

func TestEngine_PreviewSharesCreatedDepartment(t *testing.T) {
	f := newFixture(t, core.ContractTypeCorporate)
	rows := []core.RawRow{
		row("Сидоров", "Пётр", core.ColDepartment, "Sales"),
		row("Кузнецова", "Анна", core.ColDepartment, " sales "),
		row("Орлов", "Олег", core.ColDepartment, "it"),
	}

	res := f.run(t, rows, false, nil)

	require.Len(t, res.RecordResults, 3)
	assert.Same(t, res.RecordResults[0].CreatedDepartment, res.RecordResults[1].FoundDepartment)
	assert.Equal(t, f.it.ID, res.RecordResults[2].FoundDepartment.ID)
	assert.Nil(t, res.RecordResults[2].CreatedDepartment)

	// Nothing is written in preview mode.
	assert.Len(t, f.repo.Departments(f.entity.ID), 1)
	assert.Len(t, f.repo.Users(f.entity.ID), 1)
}

func TestEngine_RejectionsDoNotStopTheBatch(t *testing.T) {
	f := newFixture(t, core.ContractTypeCorporate)
	rows := []core.RawRow{
		row("Петров", "Иван"),                           // duplicate
		row("Сидоров", "Пётр", core.ColGroup, "Ghosts"), // unknown group
		row("Кузнецова", ""),                            // invalid
		row("Орлов", "Олег", core.ColGroup, " travel "), // ok
	}

	res := f.run(t, rows, false, nil)
	require.Len(t, res.RecordResults, 4)
	assertFailedNumber(t, res)
	assert.Equal(t, 3, res.FailedNumber)

	dup := res.RecordResults[0]
	assert.NotNil(t, dup.DuplicatingUser)
	assert.Equal(t, []string{core.ErrNameDuplicatingUser}, errorNames(dup))
	assert.Nil(t, dup.UserValidationError)

	noGroup := res.RecordResults[1]
	assert.True(t, noGroup.GroupSpecified)
	assert.Nil(t, noGroup.FoundGroup)
	assert.Equal(t, []string{core.ErrNameGroupNotFound}, errorNames(noGroup))

	invalid := res.RecordResults[2]
	require.NotNil(t, invalid.UserValidationError)
	assert.Equal(t, []string{core.ErrNameChecksNotPassed}, errorNames(invalid))

	ok := res.RecordResults[3]
	require.NotNil(t, ok.CreatedUser)
	require.NotNil(t, ok.FoundGroup)
	require.NotNil(t, ok.CreatedUser.GroupID)
	assert.Equal(t, f.group.ID, *ok.CreatedUser.GroupID)
	assert.Empty(t, ok.Errors)
	assert.NotNil(t, ok.Errors, "errors serialize as an empty list")
}

func TestEngine_DuplicateEndsRecordChecks(t *testing.T) {
	f := newFixture(t, core.ContractTypeCorporate)
	rows := []core.RawRow{
		row("Петров", "Иван",
			core.ColDocNumber, "1",
			core.ColDepartment, strings.Repeat("x", 300)),
	}

	res := f.run(t, rows, false, nil)
	require.Len(t, res.RecordResults, 1)

	dup := res.RecordResults[0]
	assert.NotNil(t, dup.DuplicatingUser)
	assert.True(t, dup.DocumentSpecified)
	assert.True(t, dup.DepartmentSpecified)
	assert.Nil(t, dup.UserValidationError)
	assert.Nil(t, dup.DocumentValidationError)
	assert.Nil(t, dup.DepartmentValidationError)
	assert.Equal(t, []string{core.ErrNameDuplicatingUser}, errorNames(dup))
}

func TestEngine_RecordResultNullFields(t *testing.T) {
	f := newFixture(t, core.ContractTypeCorporate)
	res := f.run(t, []core.RawRow{row("Петров", "Иван")}, false, nil)
	require.Len(t, res.RecordResults, 1)

	data, err := json.Marshal(res.RecordResults[0])
	require.NoError(t, err)
	var got map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &got))

	for _, key := range []string{
		"createdUser",
		"foundGroup",
		"foundDepartment",
		"createdDepartment",
		"createdDocument",
		"userValidationError",
		"documentValidationError",
		"departmentValidationError",
	} {
		raw, ok := got[key]
		if assert.True(t, ok, "%s is present", key) {
			assert.Equal(t, "null", string(raw), key)
		}
	}
	assert.NotEqual(t, "null", string(got["duplicatingUser"]))
}

func TestEngine_ResultOrderAndSelection(t *testing.T) {
	f := newFixture(t, core.ContractTypeCorporate)
	rows := []core.RawRow{
		row("A", "a"), row("B", "b"), row("C", "c"), row("D", "d"),
	}

	res := f.run(t, rows, false, []int{3, 1, 1, 9, -1})

	require.Len(t, res.RecordResults, 2)
	assert.Equal(t, 1, res.RecordResults[0].Index)
	assert.Equal(t, 3, res.RecordResults[1].Index)
	assert.Equal(t, "B", res.RecordResults[0].ParsedData[core.ColLastName])
}

func TestEngine_DocumentNames(t *testing.T) {
	f := newFixture(t, core.ContractTypeCorporate)
	rows := []core.RawRow{
		row("Щукин", "Иван",
			core.ColDocType, "в", core.ColDocNumber, "4510 123456",
			core.ColDocLastName, "Щукин", core.ColDocFirstName, "Иван"),
		row("Smith", "John",
			core.ColDocType, "з", core.ColDocNumber, "72 1234567",
			core.ColDocLastName, "Smith", core.ColDocFirstName, "John"),
	}

	res := f.run(t, rows, false, nil)
	require.Len(t, res.RecordResults, 2)

	passport := res.RecordResults[0].CreatedDocument
	require.NotNil(t, passport)
	assert.Equal(t, core.DocTypePassport, passport.Type)
	assert.Equal(t, "Щукин", passport.LastNameLoc)
	assert.Equal(t, "SHCHukin", passport.LastNameInt)
	assert.Equal(t, "Ivan", passport.FirstNameInt)
	assert.True(t, passport.IsActive)

	foreign := res.RecordResults[1].CreatedDocument
	require.NotNil(t, foreign)
	assert.Equal(t, core.DocTypeForeignPassport, foreign.Type)
	assert.Equal(t, "Smith", foreign.LastNameInt)
	assert.Equal(t, "John", foreign.FirstNameInt)
	assert.Empty(t, foreign.LastNameLoc)
	assert.True(t, res.RecordResults[1].DocumentSpecified)
}

func TestEngine_NoDocumentWithoutDocumentData(t *testing.T) {
	f := newFixture(t, core.ContractTypeCorporate)
	res := f.run(t, []core.RawRow{row("Орлов", "Олег", core.ColDocNumber, "  ")}, true, nil)

	rr := res.RecordResults[0]
	assert.False(t, rr.DocumentSpecified)
	assert.Nil(t, rr.CreatedDocument)
	assert.NotNil(t, rr.CreatedUser)
	assert.Empty(t, f.repo.Documents())
}

func TestEngine_Permissions(t *testing.T) {
	perms := []string{
		core.ColPermCanOrder, "да",
		core.ColPermCanOrderForOthers, "Да",
		core.ColPermCanViewFinReports, "нет",
	}

	tests := []struct {
		contractType string
		want         []string
	}{
		{core.ContractTypeCorporate, []string{core.AclOrderCreator, core.AclOtherEmployeesOrderCreator}},
		{core.ContractTypeAgency, []string{core.AclOrderCreator}},
	}

	for _, tt := range tests {
		t.Run(tt.contractType, func(t *testing.T) {
			f := newFixture(t, tt.contractType)
			res := f.run(t, []core.RawRow{row("Орлов", "Олег", perms...)}, true, nil)

			user := res.RecordResults[0].CreatedUser
			require.NotNil(t, user)
			assert.Equal(t, tt.want, user.AclGroups)
			assert.ElementsMatch(t, tt.want, f.repo.UserAclGroups(user.ID))
			assert.Equal(t, core.RoleEmployee, user.Role)
			assert.Equal(t, "admin@acme.test", user.CreatedBy)
		})
	}
}

func TestEngine_PersistenceFailureIsRecordScoped(t *testing.T) {
	f := newFixture(t, core.ContractTypeCorporate)
	f.repo.FailOn("CreateDocument", errors.New("connection refused"))

	rows := []core.RawRow{
		row("Сидоров", "Пётр", core.ColDepartment, "HR",
			core.ColDocType, "в", core.ColDocNumber, "1",
			core.ColDocLastName, "Сидоров", core.ColDocFirstName, "Пётр"),
		row("Кузнецова", "Анна", core.ColDepartment, "HR"),
	}

	res := f.run(t, rows, true, nil)
	require.Len(t, res.RecordResults, 2)

	failed := res.RecordResults[0]
	assert.Nil(t, failed.CreatedUser)
	assert.Nil(t, failed.CreatedDepartment)
	require.Equal(t, []string{core.ErrNameCantSaveRecord}, errorNames(failed))
	assert.Equal(t, "DB004", failed.Errors[0].Code)

	// The second row creates HR itself since the first never persisted it.
	saved := res.RecordResults[1]
	require.NotNil(t, saved.CreatedUser)
	require.NotNil(t, saved.CreatedDepartment)
	assert.NotEqual(t, uuid.Nil, saved.CreatedDepartment.ID)

	assert.Equal(t, 1, res.FailedNumber)
	assert.Len(t, f.repo.Users(f.entity.ID), 2)
	assert.Len(t, f.repo.Departments(f.entity.ID), 2)
	assert.Empty(t, f.repo.Documents())
}

func TestEngine_PanicIsRecordScoped(t *testing.T) {
	calls := 0
	gen := func() (string, error) {
		calls++
		if calls == 1 {
			panic("entropy exhausted")
		}
		return "pw", nil
	}
	f := newFixture(t, core.ContractTypeCorporate, core.WithPasswordGenerator(gen))

	res := f.run(t, []core.RawRow{row("A", "a"), row("B", "b")}, false, nil)

	require.Len(t, res.RecordResults, 2)
	assert.Equal(t, []string{core.ErrNameUnexpected}, errorNames(res.RecordResults[0]))
	assert.NotNil(t, res.RecordResults[1].CreatedUser)
	assert.Equal(t, 1, res.FailedNumber)
}

func TestEngine_PreviewIsIdempotent(t *testing.T) {
	f := newFixture(t, core.ContractTypeCorporate)
	rows := []core.RawRow{
		row("Сидоров", "Пётр", core.ColDepartment, "HR", core.ColBirthday, "1985-03-02"),
		row("Петров", "Иван"),
		row("Орлов", "", core.ColGroup, "Nope"),
	}

	first, err := json.Marshal(f.run(t, rows, false, nil))
	require.NoError(t, err)
	second, err := json.Marshal(f.run(t, rows, false, nil))
	require.NoError(t, err)

	assert.JSONEq(t, string(first), string(second))
}

func TestEngine_EntityNotFound(t *testing.T) {
	f := newFixture(t, core.ContractTypeCorporate)

	_, err := f.engine.Run(context.Background(), []core.RawRow{row("A", "a")}, core.RunOptions{EntityID: uuid.New()})
	assert.ErrorIs(t, err, core.ErrEntityNotFound)
}

func TestEngine_EmptyUpload(t *testing.T) {
	f := newFixture(t, core.ContractTypeCorporate)

	res := f.run(t, nil, false, nil)
	assert.Empty(t, res.RecordResults)
	assert.Zero(t, res.FailedNumber)
}
