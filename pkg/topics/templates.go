package topics

import (
	"context"
	"errors"
	"slices"

	"github.com/topicnote/topicnote/pkg/models"
)

var (
	// ErrBuiltinTemplate is returned when changing or removing a default template.
	ErrBuiltinTemplate = errors.New("default templates cannot be modified")
	// ErrTemplateExists is returned when adding a template whose id is taken.
	ErrTemplateExists = errors.New("template already exists")
)

// DefaultTemplates are always available and cannot be changed.
var DefaultTemplates = []models.Template{
	{
		ID:           "debate",
		Name:         "Debate",
		Icon:         "💬",
		Description:  "Estrutura para debates e discussões políticas",
		DefaultTitle: "Novo Debate",
		DefaultContent: `<h2>📋 Tese Principal</h2>
<p>Descreva a tese ou posição principal do debate...</p>

<h2>✅ Argumentos a Favor</h2>
<ul>
  <li>Argumento 1</li>
  <li>Argumento 2</li>
  <li>Argumento 3</li>
</ul>

<h2>❌ Contra-argumentos</h2>
<ul>
  <li>Contra-argumento 1</li>
  <li>Contra-argumento 2</li>
  <li>Contra-argumento 3</li>
</ul>

<h2>🎯 Conclusão</h2>
<p>Sua análise final e posicionamento...</p>`,
		DefaultTags: []string{"debate", "política", "argumentação"},
	},
	{
		ID:           "entrevista",
		Name:         "Entrevista",
		Icon:         "🎤",
		Description:  "Template para anotações de entrevistas políticas",
		DefaultTitle: "Entrevista - [Nome do Entrevistado]",
		DefaultContent: `<h2>👤 Entrevistado</h2>
<p><strong>Nome:</strong> [Nome completo]</p>
<p><strong>Cargo:</strong> [Cargo/posição]</p>
<p><strong>Data:</strong> [Data da entrevista]</p>

<h2>📺 Contexto</h2>
<p>Contexto da entrevista, programa, evento...</p>

<h2>💡 Principais Pontos</h2>
<ul>
  <li>Ponto 1</li>
  <li>Ponto 2</li>
  <li>Ponto 3</li>
</ul>

<h2>📝 Observações</h2>
<p>Observações importantes, tom, reações...</p>

<h2>🔗 Links</h2>
<p>Links relevantes, vídeos, artigos...</p>`,
		DefaultTags: []string{"entrevista", "política", "mídia"},
	},
	{
		ID:           "analise-politica",
		Name:         "Análise Política",
		Icon:         "📊",
		Description:  "Estrutura para análises políticas detalhadas",
		DefaultTitle: "Análise: [Tema]",
		DefaultContent: `<h2>🎯 Tema Central</h2>
<p>Descrição do tema ou questão política...</p>

<h2>📅 Contexto Histórico</h2>
<p>Contexto histórico e antecedentes...</p>

<h2>🔍 Análise Atual</h2>
<p>Análise da situação atual...</p>

<h2>👥 Principais Atores</h2>
<ul>
  <li>Actor 1</li>
  <li>Actor 2</li>
  <li>Actor 3</li>
</ul>

<h2>📈 Impactos e Consequências</h2>
<p>Possíveis impactos e consequências...</p>

<h2>🔮 Perspectivas Futuras</h2>
<p>Cenários futuros e tendências...</p>`,
		DefaultTags: []string{"análise", "política", "contexto"},
	},
	{
		ID:             "anotacao-rapida",
		Name:           "Anotação Rápida",
		Icon:           "⚡",
		Description:    "Template simples para anotações rápidas",
		DefaultTitle:   "Anotação Rápida",
		DefaultContent: `<p>Escreva suas anotações aqui...</p>`,
		DefaultTags:    []string{"rápida", "notas"},
	},
}

func isDefaultTemplate(id string) bool {
	return slices.ContainsFunc(DefaultTemplates, func(t models.Template) bool { return t.ID == id })
}

// Templates returns the default templates followed by the custom ones.
func (s *Store) Templates() []models.Template {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Template, 0, len(DefaultTemplates)+len(s.custom))
	for _, t := range DefaultTemplates {
		out = append(out, cloneTemplate(t))
	}
	for _, t := range s.custom {
		out = append(out, cloneTemplate(t))
	}
	return out
}

// AddTemplate registers a custom template. An empty id is generated.
func (s *Store) AddTemplate(t models.Template) (models.Template, error) {
	if t.ID == "" {
		t.ID = s.newID()
	}
	if isDefaultTemplate(t.ID) {
		return models.Template{}, ErrTemplateExists
	}
	t = cloneTemplate(t)
	t.IsCustom = true

	s.mu.Lock()
	defer s.mu.Unlock()
	if slices.ContainsFunc(s.custom, func(c models.Template) bool { return c.ID == t.ID }) {
		return models.Template{}, ErrTemplateExists
	}
	s.custom = append(s.custom, t)
	return cloneTemplate(t), nil
}

// UpdateTemplate replaces the custom template with t's id. Unknown ids are
// ignored.
func (s *Store) UpdateTemplate(t models.Template) error {
	if isDefaultTemplate(t.ID) {
		return ErrBuiltinTemplate
	}
	t = cloneTemplate(t)
	t.IsCustom = true

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.custom {
		if s.custom[i].ID == t.ID {
			s.custom[i] = t
		}
	}
	return nil
}

// DeleteTemplate removes a custom template. Unknown ids are ignored.
func (s *Store) DeleteTemplate(id string) error {
	if isDefaultTemplate(id) {
		return ErrBuiltinTemplate
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.custom = slices.DeleteFunc(s.custom, func(t models.Template) bool { return t.ID == id })
	return nil
}

// CreateTopicFromTemplate creates a topic from the template's defaults under
// parentID. It returns (nil, nil) when the template is unknown.
func (s *Store) CreateTopicFromTemplate(ctx context.Context, templateID string, parentID *string) (*models.Topic, error) {
	var tpl *models.Template
	for _, t := range s.Templates() {
		if t.ID == templateID {
			tpl = &t
			break
		}
	}
	if tpl == nil {
		return nil, nil
	}
	return s.CreateTopic(ctx, tpl.Input(parentID))
}

func cloneTemplate(t models.Template) models.Template {
	t.DefaultTags = slices.Clone(t.DefaultTags)
	return t
}
