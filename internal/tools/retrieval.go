package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/BTreeMap/datcomagent/internal/chatclient"
	"github.com/BTreeMap/datcomagent/internal/embedclient"
	"github.com/BTreeMap/datcomagent/internal/vectorstore"
	"github.com/BTreeMap/datcomagent/internal/workflowstate"
	"github.com/openai/openai-go"
)

// RegisterRetrievalTools wires design_area_router, retrieve_datcom_archive,
// metadata_search, and article_lookup into reg. Grounded on
// original_source/rag_system/tool/router.py (collection picking),
// tool/metadata_search.py, and tool/article_lookup.py, reusing C1-C3 for
// the underlying embedding and store calls.
func RegisterRetrievalTools(reg *Registry, store vectorstore.Store, embed *embedclient.Client, chat *chatclient.Client, contentMaxLength int, defaultCollection string) {
	reg.Register(workflowstate.ToolSpec{
		Name:        "design_area_router",
		Description: "Pick the document collection most relevant to a query. Call this before retrieve_datcom_archive when no collection has been selected yet.",
		Parameters: map[string]interface{}{
			"type":                 "object",
			"properties":           map[string]interface{}{"query": map[string]interface{}{"type": "string"}},
			"required":             []string{"query"},
			"additionalProperties": false,
		},
		Handler: designAreaRouterHandler(store, chat),
	})

	reg.Register(workflowstate.ToolSpec{
		Name:        "retrieve_datcom_archive",
		Description: "Semantic search over the document corpus. Returns formatted citations and snippets.",
		Parameters: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"query":      map[string]interface{}{"type": "string"},
				"collection": map[string]interface{}{"type": "string"},
				"k":          map[string]interface{}{"type": "integer"},
			},
			"required":             []string{"query"},
			"additionalProperties": false,
		},
		Handler: retrieveDatcomArchiveHandler(store, embed, contentMaxLength, defaultCollection),
	})

	reg.Register(workflowstate.ToolSpec{
		Name:        "metadata_search",
		Description: "Structured lookup by exact metadata field value, e.g. searching by section or article number.",
		Parameters: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"collection": map[string]interface{}{"type": "string"},
				"field":      map[string]interface{}{"type": "string"},
				"value":      map[string]interface{}{"type": "string"},
			},
			"required":             []string{"collection", "field", "value"},
			"additionalProperties": false,
		},
		Handler: metadataSearchHandler(store, contentMaxLength),
	})

	reg.Register(workflowstate.ToolSpec{
		Name:        "article_lookup",
		Description: "Direct lookup of a document article by its article number or reference string. Use this whenever the query names an explicit article.",
		Parameters: map[string]interface{}{
			"type":                 "object",
			"properties":           map[string]interface{}{"reference": map[string]interface{}{"type": "string"}},
			"required":             []string{"reference"},
			"additionalProperties": false,
		},
		Handler: articleLookupHandler(store),
	})
}

func designAreaRouterHandler(store vectorstore.Store, chat *chatclient.Client) workflowstate.ToolHandler {
	return func(ctx context.Context, rawArgs string) (string, error) {
		var args struct {
			Query string `json:"query"`
		}
		if err := json.Unmarshal([]byte(rawArgs), &args); err != nil {
			return "", fmt.Errorf("invalid arguments: %w", err)
		}
		stats, err := store.ListCollections(ctx)
		if err != nil {
			return "retrieval unavailable", nil
		}
		if len(stats) == 0 {
			return "no collections available", nil
		}
		names := make([]string, len(stats))
		for i, s := range stats {
			names[i] = s.Name
		}
		if len(names) == 1 {
			return names[0], nil
		}

		prompt := fmt.Sprintf("Given the query below, respond with exactly one collection name from this list, nothing else.\nCollections: %s\nQuery: %s", strings.Join(names, ", "), args.Query)
		reply, err := chat.Complete(ctx, []openai.ChatCompletionMessageParamUnion{openai.UserMessage(prompt)})
		if err != nil {
			return names[0], nil
		}
		reply = strings.TrimSpace(reply)
		for _, c := range names {
			if strings.EqualFold(c, reply) {
				return c, nil
			}
		}
		return names[0], nil
	}
}

func retrieveDatcomArchiveHandler(store vectorstore.Store, embed *embedclient.Client, contentMaxLength int, defaultCollection string) workflowstate.ToolHandler {
	return func(ctx context.Context, rawArgs string) (string, error) {
		var args struct {
			Query      string `json:"query"`
			Collection string `json:"collection"`
			K          int    `json:"k"`
		}
		if err := json.Unmarshal([]byte(rawArgs), &args); err != nil {
			return "", fmt.Errorf("invalid arguments: %w", err)
		}
		if args.Query == "" {
			return "", fmt.Errorf("query is required")
		}
		if args.K <= 0 {
			args.K = 10
		}
		if args.Collection == "" {
			args.Collection = defaultCollection
		}
		if args.Collection == "" {
			collections, err := store.ListCollections(ctx)
			if err != nil || len(collections) == 0 {
				return "retrieval unavailable", nil
			}
			args.Collection = collections[0].Name
		}

		vec, err := embed.EmbedQuery(ctx, args.Query)
		if err != nil {
			return "retrieval unavailable", nil
		}
		docs, err := store.SimilaritySearch(ctx, args.Collection, vec, args.K)
		if err != nil {
			return "retrieval unavailable", nil
		}
		return formatDocs(docs, contentMaxLength), nil
	}
}

func metadataSearchHandler(store vectorstore.Store, contentMaxLength int) workflowstate.ToolHandler {
	return func(ctx context.Context, rawArgs string) (string, error) {
		var args struct {
			Collection string `json:"collection"`
			Field      string `json:"field"`
			Value      string `json:"value"`
		}
		if err := json.Unmarshal([]byte(rawArgs), &args); err != nil {
			return "", fmt.Errorf("invalid arguments: %w", err)
		}
		if args.Collection == "" || args.Field == "" || args.Value == "" {
			return "", fmt.Errorf("collection, field, and value are all required")
		}
		docs, err := store.MetadataLookup(ctx, args.Collection, map[string]string{args.Field: args.Value})
		if err != nil {
			return "retrieval unavailable", nil
		}
		if len(docs) == 0 {
			return "no matching entries found", nil
		}
		return formatDocs(docs, contentMaxLength), nil
	}
}

func articleLookupHandler(store vectorstore.Store) workflowstate.ToolHandler {
	return func(ctx context.Context, rawArgs string) (string, error) {
		var args struct {
			Reference string `json:"reference"`
		}
		if err := json.Unmarshal([]byte(rawArgs), &args); err != nil {
			return "", fmt.Errorf("invalid arguments: %w", err)
		}
		if args.Reference == "" {
			return "", fmt.Errorf("reference is required")
		}
		reference := normalizeArticleReference(args.Reference)

		collections, err := store.ListCollections(ctx)
		if err != nil {
			return "retrieval unavailable", nil
		}
		for _, collection := range collections {
			docs, err := store.MetadataLookup(ctx, collection.Name, map[string]string{"article": reference})
			if err != nil {
				continue
			}
			if len(docs) > 0 {
				var b strings.Builder
				for _, d := range docs {
					b.WriteString(d.Content)
					b.WriteString("\n")
				}
				return strings.TrimSpace(b.String()), nil
			}
		}
		return "not found", nil
	}
}

// normalizeArticleReference canonicalizes common article-number spellings
// ("第24條", "Article 24", "art. 24") into the "第 NN 條" form used as the
// canonical article metadata key, matching original_source's
// article_lookup.py normalization step.
func normalizeArticleReference(ref string) string {
	ref = strings.TrimSpace(ref)
	if strings.Contains(ref, "第") && strings.Contains(ref, "條") {
		ref = strings.ReplaceAll(ref, "第", "第 ")
		ref = strings.ReplaceAll(ref, "條", " 條")
		return strings.Join(strings.Fields(ref), " ")
	}
	var num string
	for _, r := range ref {
		if r >= '0' && r <= '9' {
			num += string(r)
		}
	}
	if num != "" {
		return fmt.Sprintf("第 %s 條", num)
	}
	return ref
}

func formatDocs(docs []workflowstate.RetrievedDoc, contentMaxLength int) string {
	sort.SliceStable(docs, func(i, j int) bool { return docs[i].Similarity > docs[j].Similarity })
	var b strings.Builder
	for i, d := range docs {
		content := d.Content
		if contentMaxLength > 0 && len(content) > contentMaxLength {
			content = content[:contentMaxLength] + "…"
		}
		source := citationSource(d)
		fmt.Fprintf(&b, "[%d] (source: %s)\n%s\n\n", i+1, source, content)
	}
	return strings.TrimSpace(b.String())
}

func citationSource(d workflowstate.RetrievedDoc) string {
	if article, ok := d.Metadata["article"]; ok && article != "" {
		return fmt.Sprintf("%s, %s", d.Collection, article)
	}
	if section, ok := d.Metadata["section"]; ok && section != "" {
		return fmt.Sprintf("%s§%s", d.Collection, section)
	}
	return fmt.Sprintf("%s#%s", d.Collection, d.ID)
}
