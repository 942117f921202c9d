package cluster

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/juju/loggo"

	"github.com/rflorenc/esmigrate/internal/models"
)

var logger = loggo.GetLogger("esmigrate.cluster")

// Elasticsearch implements the cluster operations the migration engine uses
// on top of the REST API.
type Elasticsearch struct {
	cluster *models.Cluster
	client  *Client
}

// NewElasticsearch creates an Elasticsearch bound to a cluster.
func NewElasticsearch(c *models.Cluster, timeout time.Duration) *Elasticsearch {
	return &Elasticsearch{cluster: c, client: NewClient(c, timeout)}
}

// Info returns the cluster this instance talks to.
func (e *Elasticsearch) Info() *models.Cluster {
	return e.cluster
}

// Ping fetches GET / and returns the reported version ("" if unknown).
func (e *Elasticsearch) Ping(ctx context.Context) (string, error) {
	info, err := e.client.Info(ctx)
	if err != nil {
		return "", err
	}
	return info.Version.Number, nil
}

// SupportsRemoteReindex reports whether the cluster can pull documents from a
// remote source. Unknown versions are assumed to support it.
func (e *Elasticsearch) SupportsRemoteReindex(ctx context.Context) (bool, string, error) {
	info, err := e.client.Info(ctx)
	if err != nil {
		return false, "", err
	}
	if info.Version.Distribution == "opensearch" {
		return true, info.Version.Number, nil
	}
	return VersionAtLeast(info.Version.Number, MinRemoteReindexVersion), info.Version.Number, nil
}

// catIndex is one row of GET /_cat/indices?format=json.
type catIndex struct {
	Index     string  `json:"index"`
	Health    *string `json:"health"`
	Status    string  `json:"status"`
	DocsCount *string `json:"docs.count"`
}

// ListIndexes returns every index on the cluster, sorted by name.
// Closed indexes report no health or count and are returned as red and empty.
// So is an index whose document count cannot be parsed.
func (e *Elasticsearch) ListIndexes(ctx context.Context) ([]models.IndexRecord, error) {
	logger.Debugf("listIndexes %s", e.client.BaseURL())
	var rows []catIndex
	params := url.Values{"format": {"json"}, "h": {"index,health,status,docs.count"}}
	if err := e.client.GetJSON(ctx, "/_cat/indices", params, &rows); err != nil {
		return nil, err
	}
	records := make([]models.IndexRecord, 0, len(rows))
	for _, row := range rows {
		rec := models.IndexRecord{Name: row.Index, Health: models.HealthRed}
		if row.Health != nil && *row.Health != "" {
			rec.Health = models.Health(*row.Health)
		}
		if row.DocsCount != nil {
			n, err := strconv.ParseInt(*row.DocsCount, 10, 64)
			if err != nil {
				logger.Warningf("index %s on %s: bad docs.count %q, treating it as red", row.Index, e.client.BaseURL(), *row.DocsCount)
				rec.Health = models.HealthRed
			} else {
				rec.DocumentCount = n
			}
		}
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Name < records[j].Name })
	return records, nil
}

// tasksResponse is the body of GET /_tasks.
type tasksResponse struct {
	Nodes map[string]struct {
		Name  string `json:"name"`
		Tasks map[string]struct {
			Node             string `json:"node"`
			ID               int64  `json:"id"`
			Action           string `json:"action"`
			Description      string `json:"description"`
			RunningTimeNanos int64  `json:"running_time_in_nanos"`
		} `json:"tasks"`
	} `json:"nodes"`
}

// ListRunningTasks returns the reindex-class tasks currently running,
// keyed by task ID.
func (e *Elasticsearch) ListRunningTasks(ctx context.Context) (map[string]models.TaskDescriptor, error) {
	logger.Debugf("listRunningTasks %s", e.client.BaseURL())
	var resp tasksResponse
	params := url.Values{"actions": {"*reindex"}, "detailed": {"true"}}
	if err := e.client.GetJSON(ctx, "/_tasks", params, &resp); err != nil {
		return nil, err
	}
	tasks := make(map[string]models.TaskDescriptor)
	for nodeID, node := range resp.Nodes {
		for id, t := range node.Tasks {
			tasks[id] = models.TaskDescriptor{
				ID:          id,
				Node:        nodeID,
				Action:      t.Action,
				Description: t.Description,
				RunningTime: time.Duration(t.RunningTimeNanos),
			}
		}
	}
	return tasks, nil
}

// RemoveIndex deletes an index. Deleting a missing index succeeds.
func (e *Elasticsearch) RemoveIndex(ctx context.Context, name string) error {
	logger.Debugf("rmIndex %s %s", name, e.client.BaseURL())
	return e.client.Delete(ctx, "/"+url.PathEscape(name))
}

// TruncateIndex deletes every document of an index in place and returns the
// server-reported duration.
func (e *Elasticsearch) TruncateIndex(ctx context.Context, name string) (time.Duration, error) {
	logger.Debugf("truncateIndex %s %s", name, e.client.BaseURL())
	var resp struct {
		Took    int64 `json:"took"`
		Deleted int64 `json:"deleted"`
	}
	body := map[string]interface{}{
		"query": map[string]interface{}{"match_all": map[string]interface{}{}},
	}
	params := url.Values{"conflicts": {"proceed"}, "refresh": {"true"}}
	if err := e.client.PostJSON(ctx, "/"+url.PathEscape(name)+"/_delete_by_query", params, body, &resp); err != nil {
		return 0, err
	}
	logger.Debugf("truncated %s: %d documents deleted", name, resp.Deleted)
	return time.Duration(resp.Took) * time.Millisecond, nil
}

// ReindexRequest is the body of POST /_reindex for a remote source.
type ReindexRequest struct {
	Source ReindexSource `json:"source"`
	Dest   struct {
		Index string `json:"index"`
	} `json:"dest"`
}

// ReindexSource names the remote index to pull from.
type ReindexSource struct {
	Remote struct {
		Host     string `json:"host"`
		Username string `json:"username,omitempty"`
		Password string `json:"password,omitempty"`
	} `json:"remote"`
	Index string                 `json:"index"`
	Query map[string]interface{} `json:"query"`
}

// NewReindexRequest builds the request copying index from source. Source
// credentials embedded in the cluster URL are forwarded to the destination.
func NewReindexRequest(index string, source *models.Cluster) ReindexRequest {
	var req ReindexRequest
	req.Source.Remote.Host = source.BaseURL()
	if user, pass, ok := source.Credentials(); ok {
		req.Source.Remote.Username = user
		req.Source.Remote.Password = pass
	}
	req.Source.Index = index
	req.Source.Query = map[string]interface{}{"match_all": map[string]interface{}{}}
	req.Dest.Index = index
	return req
}

// SubmitCopy starts a remote reindex of index from source into this cluster
// without waiting for it and returns the task ID.
func (e *Elasticsearch) SubmitCopy(ctx context.Context, index string, source *models.Cluster) (string, error) {
	logger.Debugf("migrateIndex %s %s %s", index, source.BaseURL(), e.client.BaseURL())
	var resp struct {
		Task string `json:"task"`
	}
	params := url.Values{"wait_for_completion": {"false"}}
	if err := e.client.PostJSON(ctx, "/_reindex", params, NewReindexRequest(index, source), &resp); err != nil {
		return "", err
	}
	if resp.Task == "" {
		return "", fmt.Errorf("reindex of %s: response carried no task id", index)
	}
	return resp.Task, nil
}

// taskResponse is the body of GET /_tasks/{id}.
type taskResponse struct {
	Completed bool `json:"completed"`
	Task      struct {
		Status struct {
			Total   int64 `json:"total"`
			Updated int64 `json:"updated"`
			Created int64 `json:"created"`
			Deleted int64 `json:"deleted"`
		} `json:"status"`
	} `json:"task"`
	Response *struct {
		Failures []json.RawMessage `json:"failures"`
	} `json:"response"`
	Error *struct {
		Type   string `json:"type"`
		Reason string `json:"reason"`
	} `json:"error"`
}

// GetTaskStatus polls one task.
func (e *Elasticsearch) GetTaskStatus(ctx context.Context, taskID string) (models.TaskStatus, error) {
	var resp taskResponse
	if err := e.client.GetJSON(ctx, "/_tasks/"+url.PathEscape(taskID), nil, &resp); err != nil {
		return models.TaskStatus{}, err
	}
	return parseTaskStatus(resp), nil
}

func parseTaskStatus(resp taskResponse) models.TaskStatus {
	status := models.TaskStatus{
		Completed: resp.Completed,
		Total:     resp.Task.Status.Total,
		Updated:   resp.Task.Status.Updated,
		Created:   resp.Task.Status.Created,
		Deleted:   resp.Task.Status.Deleted,
	}
	switch {
	case resp.Error != nil:
		status.Error = fmt.Sprintf("%s: %s", resp.Error.Type, resp.Error.Reason)
	case resp.Response != nil && len(resp.Response.Failures) > 0:
		status.Error = fmt.Sprintf("%d document failure(s), first: %s",
			len(resp.Response.Failures), truncate(string(resp.Response.Failures[0]), 200))
	}
	return status
}
