package utils

//run redis
//docker run -p 6379:6379 -d redis

//run qdrant
//docker run -p 6333:6333 -p 6334:6334 -v vectorDBData:/qdrant/storage qdrant/qdrant

//run rabbitmq
//docker run -p 5672:5672 -p 15672:15672 -d rabbitmq:3-management

//change streams need a replica set, a single node one is enough locally
//docker run -p 27017:27017 -d mongo:7 --replSet rs0
//docker exec <id> mongosh --eval "rs.initiate()"
