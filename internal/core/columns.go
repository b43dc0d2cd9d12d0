package core

import "strings"

// Column keys in upload order. Keys prefixed with DocPrefix describe the
// travel document, keys prefixed with PermPrefix are permission flags.
const (
	ColLastName              = "lastName"
	ColFirstName             = "firstName"
	ColMiddleName            = "middleName"
	ColBirthday              = "birthday"
	ColEmail                 = "email"
	ColPhone                 = "phone"
	ColDepartment            = "department"
	ColGroup                 = "group"
	ColDocType               = "doc_type"
	ColDocNumber             = "doc_number"
	ColDocLastName           = "doc_lastName"
	ColDocFirstName          = "doc_firstName"
	ColDocMiddleName         = "doc_middleName"
	ColDocGender             = "doc_gender"
	ColDocCitizenship        = "doc_citizenship"
	ColDocIssueDate          = "doc_issueDate"
	ColDocExpirationDate     = "doc_expirationDate"
	ColPermCanOrder          = "perm_canOrder"
	ColPermCanOrderForOthers = "perm_canOrderForOthers"
	ColPermCanViewFinReports = "perm_canViewFinReports"
)

// Field prefixes.
const (
	DocPrefix  = "doc_"
	PermPrefix = "perm_"
)

// Permission keys after the PermPrefix is stripped.
const (
	PermCanOrder          = "canOrder"
	PermCanOrderForOthers = "canOrderForOthers"
	PermCanViewFinReports = "canViewFinReports"
)

// Column describes one positional column of the upload.
type Column struct {
	Key     string
	Title   string
	Example string
}

// Columns is the fixed upload layout. The first spreadsheet row holds the
// titles and is skipped on import.
var Columns = []Column{
	{ColLastName, "Фамилия", "Иванов"},
	{ColFirstName, "Имя", "Иван"},
	{ColMiddleName, "Отчество", "Иванович"},
	{ColBirthday, "Дата рожд.", "1985-04-12"},
	{ColEmail, "Эл. почта", "ivanov@example.com"},
	{ColPhone, "Тел.", "+79161234567"},
	{ColDepartment, "Группа сотр.", "Бухгалтерия"},
	{ColGroup, "Огранич. на заказ", "Основная"},
	{ColDocType, "Тип документа", "в"},
	{ColDocNumber, "Номер документа", "4510123456"},
	{ColDocLastName, "Фамилия", "Иванов"},
	{ColDocFirstName, "Имя", "Иван"},
	{ColDocMiddleName, "Отчество", "Иванович"},
	{ColDocGender, "Пол", "м"},
	{ColDocCitizenship, "Гражданство", "RU"},
	{ColDocIssueDate, "Дата выдачи", "2015-06-01"},
	{ColDocExpirationDate, "Действ. до", ""},
	{ColPermCanOrder, "Может заказывать билеты и отели", "да"},
	{ColPermCanOrderForOthers, "Может заказывать на других сотрудников", "нет"},
	{ColPermCanViewFinReports, "Может просматривать фин. отчёты", "нет"},
}

var dateColumns = map[string]bool{
	ColBirthday:          true,
	ColDocIssueDate:      true,
	ColDocExpirationDate: true,
}

// IsDateColumn reports whether key holds a calendar date.
func IsDateColumn(key string) bool {
	return dateColumns[key]
}

// ColumnKeys returns the column keys in upload order.
func ColumnKeys() []string {
	keys := make([]string, len(Columns))
	for i, c := range Columns {
		keys[i] = c.Key
	}
	return keys
}

func isDocKey(key string) bool  { return strings.HasPrefix(key, DocPrefix) }
func isPermKey(key string) bool { return strings.HasPrefix(key, PermPrefix) }
