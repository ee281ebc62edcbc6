// Package catalog is the static set of auxiliary services that can be created
// as containers. Nothing here talks to the backend.
package catalog

import (
	"fmt"
	"sort"
)

type Category string

const (
	CategoryDatabase Category = "database"
	CategoryCache    Category = "cache"
	CategoryMail     Category = "mail"
	CategoryStorage  Category = "storage"
	CategoryTools    Category = "tools"
)

// Categories in display order.
var Categories = []Category{CategoryDatabase, CategoryCache, CategoryMail, CategoryStorage, CategoryTools}

type PortMapping struct {
	Host      int    `json:"host"`
	Container int    `json:"container"`
	Protocol  string `json:"protocol"`
}

// VolumeMapping names a volume relative to its service; see VolumeName.
type VolumeMapping struct {
	Name        string `json:"name"`
	Container   string `json:"container"`
	Description string `json:"description,omitempty"`
}

type Template struct {
	ID            string
	Name          string
	Description   string
	Image         string
	DefaultTag    string
	AvailableTags []string
	Ports         []PortMapping
	Environment   map[string]string
	Volumes       []VolumeMapping
	Category      Category
}

// ImageRef returns image:tag, using the default tag when tag is empty.
func (t Template) ImageRef(tag string) string {
	if tag == "" {
		tag = t.DefaultTag
	}
	return t.Image + ":" + tag
}

func (t Template) HasTag(tag string) bool {
	for _, v := range t.AvailableTags {
		if v == tag {
			return true
		}
	}
	return false
}

// ContainerName is the name every container created from serviceID gets.
func ContainerName(prefix, serviceID string) string {
	return fmt.Sprintf("%s-%s", prefix, serviceID)
}

// VolumeName namespaces a template volume by prefix and service id.
func VolumeName(prefix, serviceID, volume string) string {
	return fmt.Sprintf("%s_%s_%s", prefix, serviceID, volume)
}

var templates = []Template{
	{
		ID:            "mysql",
		Name:          "MySQL",
		Description:   "Popular open-source relational database",
		Image:         "mysql",
		DefaultTag:    "8.0",
		AvailableTags: []string{"8.0", "8.4", "5.7"},
		Ports:         []PortMapping{{Host: 3306, Container: 3306, Protocol: "tcp"}},
		Environment: map[string]string{
			"MYSQL_ROOT_PASSWORD": "secret",
			"MYSQL_DATABASE":      "servermark",
		},
		Volumes:  []VolumeMapping{{Name: "data", Container: "/var/lib/mysql", Description: "Database files"}},
		Category: CategoryDatabase,
	},
	{
		ID:            "postgresql",
		Name:          "PostgreSQL",
		Description:   "Advanced open-source relational database",
		Image:         "postgres",
		DefaultTag:    "16",
		AvailableTags: []string{"16", "15", "14", "13"},
		Ports:         []PortMapping{{Host: 5432, Container: 5432, Protocol: "tcp"}},
		Environment: map[string]string{
			"POSTGRES_PASSWORD": "secret",
			"POSTGRES_DB":       "servermark",
		},
		Volumes:  []VolumeMapping{{Name: "data", Container: "/var/lib/postgresql/data", Description: "Database files"}},
		Category: CategoryDatabase,
	},
	{
		ID:            "redis",
		Name:          "Redis",
		Description:   "In-memory data structure store",
		Image:         "redis",
		DefaultTag:    "7-alpine",
		AvailableTags: []string{"7-alpine", "7", "6-alpine", "6"},
		Ports:         []PortMapping{{Host: 6379, Container: 6379, Protocol: "tcp"}},
		Environment:   map[string]string{},
		Volumes:       []VolumeMapping{{Name: "data", Container: "/data", Description: "Persistent data"}},
		Category:      CategoryCache,
	},
	{
		ID:            "mailpit",
		Name:          "Mailpit",
		Description:   "Email testing tool with web UI",
		Image:         "axllent/mailpit",
		DefaultTag:    "latest",
		AvailableTags: []string{"latest"},
		Ports: []PortMapping{
			{Host: 1025, Container: 1025, Protocol: "tcp"},
			{Host: 8025, Container: 8025, Protocol: "tcp"},
		},
		Environment: map[string]string{},
		Category:    CategoryMail,
	},
	{
		ID:            "minio",
		Name:          "MinIO",
		Description:   "S3-compatible object storage",
		Image:         "minio/minio",
		DefaultTag:    "latest",
		AvailableTags: []string{"latest"},
		Ports: []PortMapping{
			{Host: 9000, Container: 9000, Protocol: "tcp"},
			{Host: 9001, Container: 9001, Protocol: "tcp"},
		},
		Environment: map[string]string{
			"MINIO_ROOT_USER":     "minioadmin",
			"MINIO_ROOT_PASSWORD": "minioadmin",
		},
		Volumes:  []VolumeMapping{{Name: "data", Container: "/data", Description: "Object storage"}},
		Category: CategoryStorage,
	},
	{
		ID:            "adminer",
		Name:          "Adminer",
		Description:   "Database management in single PHP file",
		Image:         "adminer",
		DefaultTag:    "latest",
		AvailableTags: []string{"latest"},
		Ports:         []PortMapping{{Host: 8080, Container: 8080, Protocol: "tcp"}},
		Environment:   map[string]string{},
		Category:      CategoryTools,
	},
	{
		ID:            "memcached",
		Name:          "Memcached",
		Description:   "Distributed memory caching system",
		Image:         "memcached",
		DefaultTag:    "alpine",
		AvailableTags: []string{"alpine", "latest"},
		Ports:         []PortMapping{{Host: 11211, Container: 11211, Protocol: "tcp"}},
		Environment:   map[string]string{},
		Category:      CategoryCache,
	},
	{
		ID:            "mongodb",
		Name:          "MongoDB",
		Description:   "NoSQL document database",
		Image:         "mongo",
		DefaultTag:    "7",
		AvailableTags: []string{"7", "6", "5"},
		Ports:         []PortMapping{{Host: 27017, Container: 27017, Protocol: "tcp"}},
		Environment: map[string]string{
			"MONGO_INITDB_ROOT_USERNAME": "root",
			"MONGO_INITDB_ROOT_PASSWORD": "secret",
		},
		Volumes:  []VolumeMapping{{Name: "data", Container: "/data/db", Description: "Database files"}},
		Category: CategoryDatabase,
	},
}

// All returns a copy of every template in catalog order.
func All() []Template {
	ret := make([]Template, len(templates))
	for i, t := range templates {
		ret[i] = t.clone()
	}
	return ret
}

func Lookup(id string) (Template, bool) {
	for _, t := range templates {
		if t.ID == id {
			return t.clone(), true
		}
	}
	return Template{}, false
}

// ByCategory groups templates by category, keeping catalog order inside
// each group.
func ByCategory() map[Category][]Template {
	ret := map[Category][]Template{}
	for _, t := range templates {
		ret[t.Category] = append(ret[t.Category], t.clone())
	}
	return ret
}

// IDs returns every template id, sorted.
func IDs() []string {
	ret := make([]string, 0, len(templates))
	for _, t := range templates {
		ret = append(ret, t.ID)
	}
	sort.Strings(ret)
	return ret
}

func (t Template) clone() Template {
	c := t
	c.AvailableTags = append([]string(nil), t.AvailableTags...)
	c.Ports = append([]PortMapping(nil), t.Ports...)
	c.Volumes = append([]VolumeMapping(nil), t.Volumes...)
	c.Environment = make(map[string]string, len(t.Environment))
	for k, v := range t.Environment {
		c.Environment[k] = v
	}
	return c
}
