package inmemdb

import (
	"sync"

	"github.com/trezcool/coursefactory/core/course"
)

type (
	DB struct {
		course *courseTable
	}

	courseTable struct {
		sync.RWMutex
		table map[string]*course.Course
	}
)

func Open() *DB {
	return &DB{
		course: &courseTable{table: make(map[string]*course.Course)},
	}
}
