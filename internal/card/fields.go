// Package card probes and parses catalog card pages of the remote archive.
package card

// Field is a canonical metadata field name.
type Field string

// Canonical metadata fields, in output order.
const (
	FieldTitle        Field = "title"
	FieldCreator      Field = "creator"
	FieldSubjects     Field = "subjects"
	FieldDescription  Field = "description"
	FieldPublisher    Field = "publisher"
	FieldContributor  Field = "contributor"
	FieldDate         Field = "date"
	FieldResourceType Field = "resource_type"
	FieldFormat       Field = "format"
	FieldLanguage     Field = "language"
	FieldSource       Field = "source"
	FieldRelation     Field = "relation"
	FieldCoverage     Field = "coverage"
	FieldRights       Field = "rights"
)

// Fields lists every canonical field in output order.
var Fields = []Field{
	FieldTitle,
	FieldCreator,
	FieldSubjects,
	FieldDescription,
	FieldPublisher,
	FieldContributor,
	FieldDate,
	FieldResourceType,
	FieldFormat,
	FieldLanguage,
	FieldSource,
	FieldRelation,
	FieldCoverage,
	FieldRights,
}

// Labels maps the label text of a card's data table to its canonical field.
// The Japanese labels are what the site serves by default; the English ones
// appear on the lang=en rendering. 資源識別子 (the identifier row) is left
// out because the identifier is already known.
var Labels = map[string]Field{
	"タイトル":      FieldTitle,
	"著作者":       FieldCreator,
	"主題":        FieldSubjects,
	"内容記述":      FieldDescription,
	"公開者":       FieldPublisher,
	"寄与者":       FieldContributor,
	"日付":        FieldDate,
	"資源タイプ":     FieldResourceType,
	"フォーマット":    FieldFormat,
	"言語":        FieldLanguage,
	"情報源":       FieldSource,
	"関係":        FieldRelation,
	"時間的・空間的範囲": FieldCoverage,
	"権利関係":      FieldRights,

	"Title":         FieldTitle,
	"Creator":       FieldCreator,
	"Subject":       FieldSubjects,
	"Subjects":      FieldSubjects,
	"Description":   FieldDescription,
	"Publisher":     FieldPublisher,
	"Contributor":   FieldContributor,
	"Date":          FieldDate,
	"Type":          FieldResourceType,
	"Resource Type": FieldResourceType,
	"Format":        FieldFormat,
	"Language":      FieldLanguage,
	"Source":        FieldSource,
	"Relation":      FieldRelation,
	"Coverage":      FieldCoverage,
	"Rights":        FieldRights,
}
